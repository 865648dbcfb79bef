package dependencyResolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGoMod = `module example.com/service

go 1.22

require (
	github.com/rs/zerolog v1.33.0
	github.com/mattn/go-isatty v0.0.19 // indirect
	example.com/internal/lib v0.0.0
	golang.org/x/text v0.14.0
)

replace example.com/internal/lib => ../lib

replace golang.org/x/text v0.14.0 => golang.org/x/text v0.15.0
`

const testGoSum = `github.com/rs/zerolog v1.33.0 h1:zerologhash=
github.com/rs/zerolog v1.33.0/go.mod h1:modhash=
golang.org/x/text v0.15.0 h1:texthash=
`

func TestGoResolver(t *testing.T) {
	root := t.TempDir()
	bom := writeFile(t, root, "service/go.mod", testGoMod)
	writeFile(t, root, "service/go.sum", testGoSum)

	result, err := NewGoResolver().ResolveDependencies(context.Background(), root, root, []string{bom})
	require.NoError(t, err)

	found := byArtifact(result.Dependencies)
	require.Len(t, found, 3)

	assert.Equal(t, "v1.33.0", found["github.com/rs/zerolog"].Version)
	assert.Equal(t, "h1:zerologhash=", found["github.com/rs/zerolog"].Checksum)
	assert.True(t, found["github.com/rs/zerolog"].Direct)
	assert.Equal(t, "service/go.mod", found["github.com/rs/zerolog"].SystemPath)

	assert.False(t, found["github.com/mattn/go-isatty"].Direct)
	assert.Empty(t, found["github.com/mattn/go-isatty"].Checksum)

	assert.Equal(t, "v0.15.0", found["golang.org/x/text"].Version)
	assert.Equal(t, "h1:texthash=", found["golang.org/x/text"].Checksum)

	assert.NotContains(t, found, "example.com/internal/lib")
}

func TestGoResolverInvalidModFile(t *testing.T) {
	root := t.TempDir()
	bom := writeFile(t, root, "go.mod", "module\nrequire (\n")

	_, err := NewGoResolver().ResolveDependencies(context.Background(), root, root, []string{bom})
	assert.Error(t, err)
}
