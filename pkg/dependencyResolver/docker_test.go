package dependencyResolver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testImageDigest = "sha256:" + strings.Repeat("a", 64)

var testDockerfile = `ARG BASE_TAG=3.19
ARG REGISTRY
FROM golang:1.22 AS build
RUN go build -o /app .

FROM build AS test
RUN go test ./...

FROM ${REGISTRY}/tools:1 AS tools

FROM scratch AS empty

FROM alpine:${BASE_TAG}@` + testImageDigest + `
COPY --from=build /app /app
ENTRYPOINT ["/app"]
`

func TestDockerResolver(t *testing.T) {
	root := t.TempDir()
	bom := writeFile(t, root, "deploy/Dockerfile", testDockerfile)

	t.Run("AllStages", func(t *testing.T) {
		result, err := NewDockerResolver(DockerOptions{}).ResolveDependencies(context.Background(), root, root, []string{bom})
		require.NoError(t, err)
		require.Len(t, result.Dependencies, 2)

		builder := result.Dependencies[0]
		assert.Equal(t, "index.docker.io", builder.GroupId)
		assert.Equal(t, "library/golang", builder.ArtifactId)
		assert.Equal(t, "1.22", builder.Version)
		assert.Equal(t, DockerBuildStageScope, builder.Scope)
		assert.Equal(t, "deploy/Dockerfile", builder.SystemPath)

		final := result.Dependencies[1]
		assert.Equal(t, "library/alpine", final.ArtifactId)
		assert.Equal(t, "3.19", final.Version)
		assert.Equal(t, testImageDigest, final.Checksum)
		assert.Equal(t, DockerFinalStageScope, final.Scope)
		assert.Equal(t, "alpine:3.19@"+testImageDigest, final.Filename)
	})

	t.Run("IgnoreBuildStages", func(t *testing.T) {
		result, err := NewDockerResolver(DockerOptions{IgnoreBuildStages: true}).ResolveDependencies(context.Background(), root, root, []string{bom})
		require.NoError(t, err)
		require.Len(t, result.Dependencies, 1)
		assert.Equal(t, "library/alpine", result.Dependencies[0].ArtifactId)
	})
}

func TestDockerReferenceToDependency(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		registry   string
		repository string
		tag        string
		wantErr    bool
	}{
		{name: "Default tag", reference: "ubuntu", registry: "index.docker.io", repository: "library/ubuntu", tag: "latest"},
		{name: "Private registry with port", reference: "registry.example.com:5000/team/app:2.0", registry: "registry.example.com:5000", repository: "team/app", tag: "2.0"},
		{name: "Ecr", reference: "123456789012.dkr.ecr.us-east-1.amazonaws.com/payments:v3", registry: "123456789012.dkr.ecr.us-east-1.amazonaws.com", repository: "payments", tag: "v3"},
		{name: "Upper case repository", reference: "Team/App:1", wantErr: true},
		{name: "Bad digest", reference: "alpine:3@sha256:abc", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dependency, err := dockerReferenceToDependency(test.reference)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.registry, dependency.GroupId)
			assert.Equal(t, test.repository, dependency.ArtifactId)
			assert.Equal(t, test.tag, dependency.Version)
			assert.Equal(t, Docker, dependency.Type)
		})
	}
}

func TestExpandDockerArgs(t *testing.T) {
	args := map[string]string{"TAG": "1.0"}

	expanded, ok := expandDockerArgs("app:${TAG}", args)
	assert.True(t, ok)
	assert.Equal(t, "app:1.0", expanded)

	expanded, ok = expandDockerArgs("app:${MISSING:-2.0}", args)
	assert.True(t, ok)
	assert.Equal(t, "app:2.0", expanded)

	_, ok = expandDockerArgs("app:$MISSING", args)
	assert.False(t, ok)
}
