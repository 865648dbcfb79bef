package remoteDocker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Checkmarx/containers-dependency-resolver/pkg/commandExecutor"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrTypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAwsVersionCommand = "aws --version"
	DefaultAwsLoginCommand   = "aws ecr get-login --no-include-email"
	defaultMaxAttempts       = 3
)

type AmazonECROptions struct {
	RegistryIds    []string
	ImageNames     []string
	Region         string
	MaxAttempts    int
	VersionCommand string
	LoginCommand   string
	Workers        int
}

// ecrAPI is the part of the ECR client the registry uses.
type ecrAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	BatchGetImage(ctx context.Context, params *ecr.BatchGetImageInput, optFns ...func(*ecr.Options)) (*ecr.BatchGetImageOutput, error)
}

// amazonECR is created per scan run; the repository URI cache never outlives it.
type amazonECR struct {
	client   ecrAPI
	options  AmazonECROptions
	executor commandExecutor.Executor
	logins   *loginGuard

	mu sync.RWMutex
	// imageToRepositoryUriMap is keyed by repository name only, because DockerImage carries no
	// registry id. When several registry ids hold a repository of the same name, the first
	// configured registry keeps the entry and GetImageFullURL points there for all of them.
	imageToRepositoryUriMap map[string]string
}

func NewAmazonECR(ctx context.Context, options AmazonECROptions, executor commandExecutor.Executor) (RemoteRegistry, error) {
	maxAttempts := options.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	loadOptions := []func(*awsConfig.LoadOptions) error{awsConfig.WithRetryMaxAttempts(maxAttempts)}
	if options.Region != "" {
		loadOptions = append(loadOptions, awsConfig.WithRegion(options.Region))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}

	return newAmazonECR(ecr.NewFromConfig(cfg), options, executor), nil
}

func newAmazonECR(client ecrAPI, options AmazonECROptions, executor commandExecutor.Executor) *amazonECR {
	if options.VersionCommand == "" {
		options.VersionCommand = DefaultAwsVersionCommand
	}
	if options.LoginCommand == "" {
		options.LoginCommand = DefaultAwsLoginCommand
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	return &amazonECR{
		client:                  client,
		options:                 options,
		executor:                executor,
		logins:                  &loginGuard{},
		imageToRepositoryUriMap: make(map[string]string),
	}
}

func (ae *amazonECR) Name() string {
	return "Amazon ECR"
}

func (ae *amazonECR) Type() RegistryType {
	return AmazonECRRegistry
}

func (ae *amazonECR) IsRequiredRegistryManagerInstalled(ctx context.Context) bool {
	return commandExecutor.IsCommandSuccessful(ctx, ae.executor, ae.options.VersionCommand)
}

func (ae *amazonECR) LoginToRemoteRegistry(ctx context.Context) bool {
	source := credentialSource{executor: ae.executor, command: ae.options.LoginCommand}
	return ae.logins.login(ctx, ae.identity(), source)
}

func (ae *amazonECR) identity() string {
	return fmt.Sprintf("ecr/%s/%s", ae.options.Region, strings.Join(ae.registryIds(), ","))
}

// registryIds defaults to a single empty id, which addresses the caller's own registry.
func (ae *amazonECR) registryIds() []string {
	if len(ae.options.RegistryIds) == 0 {
		return []string{""}
	}
	return ae.options.RegistryIds
}

type ecrRepository struct {
	registryId string
	name       string
}

func (ae *amazonECR) ListImagesOnRemoteRegistry(ctx context.Context) []DockerImage {
	var repositories []ecrRepository
	for _, registryId := range ae.registryIds() {
		for _, repository := range ae.getRepositoriesList(ctx, registryId) {
			repositories = append(repositories, ecrRepository{registryId: registryId, name: aws.ToString(repository.RepositoryName)})
		}
	}

	perRepository := make([][]DockerImage, len(repositories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ae.options.Workers)
	for i, repository := range repositories {
		g.Go(func() error {
			perRepository[i] = ae.listRepositoryImages(gctx, repository)
			return nil
		})
	}
	_ = g.Wait()

	var images []DockerImage
	for _, repositoryImages := range perRepository {
		images = append(images, repositoryImages...)
	}
	log.Info().Msgf("found %d images in %d %s repositories", len(images), len(repositories), ae.Name())
	return images
}

// getRepositoriesList lists the repositories of one registry and caches their URIs. A failed page
// ends the listing with what was collected so far.
func (ae *amazonECR) getRepositoriesList(ctx context.Context, registryId string) []ecrTypes.Repository {
	input := &ecr.DescribeRepositoriesInput{}
	if registryId != "" {
		input.RegistryId = aws.String(registryId)
	}
	if len(ae.options.ImageNames) > 0 {
		input.RepositoryNames = ae.options.ImageNames
	}

	var repositories []ecrTypes.Repository
	paginator := ecr.NewDescribeRepositoriesPaginator(ae.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Err(&RegistryCallError{Operation: "describe-repositories", RegistryID: registryId, Err: err}).Msg("Could not list repositories.")
			break
		}
		repositories = append(repositories, page.Repositories...)
	}

	ae.mu.Lock()
	for _, repository := range repositories {
		repositoryName, repositoryUri := aws.ToString(repository.RepositoryName), aws.ToString(repository.RepositoryUri)
		if cached, ok := ae.imageToRepositoryUriMap[repositoryName]; ok && cached != repositoryUri {
			log.Warn().Msgf("repository %s exists in several registries, full urls use %s", repositoryName, cached)
			continue
		}
		ae.imageToRepositoryUriMap[repositoryName] = repositoryUri
	}
	ae.mu.Unlock()
	return repositories
}

func (ae *amazonECR) listRepositoryImages(ctx context.Context, repository ecrRepository) []DockerImage {
	details, err := ae.getImageDetails(ctx, repository)
	if err != nil {
		log.Err(err).Msgf("Could not list images of repository: %s.", repository.name)
		return nil
	}

	var images []DockerImage
	for _, detail := range details {
		output, err := ae.batchGetImage(ctx, repository, "", aws.ToString(detail.ImageDigest))
		if err != nil {
			log.Err(err).Msgf("Could not get image %s of repository: %s.", aws.ToString(detail.ImageDigest), repository.name)
			continue
		}
		for _, image := range output.Images {
			tag := ""
			if image.ImageId != nil {
				tag = aws.ToString(image.ImageId.ImageTag)
			}
			if tag == "" && len(detail.ImageTags) > 0 {
				tag = detail.ImageTags[0]
			}
			images = append(images, NewDockerImage(repository.name, tag, ExtractSHA256FromManifest(aws.ToString(image.ImageManifest))))
		}
	}
	return images
}

func (ae *amazonECR) getImageDetails(ctx context.Context, repository ecrRepository) ([]ecrTypes.ImageDetail, error) {
	input := &ecr.DescribeImagesInput{RepositoryName: aws.String(repository.name)}
	if repository.registryId != "" {
		input.RegistryId = aws.String(repository.registryId)
	}

	var details []ecrTypes.ImageDetail
	paginator := ecr.NewDescribeImagesPaginator(ae.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &RegistryCallError{Operation: "describe-images", Repository: repository.name, RegistryID: repository.registryId, Err: err}
		}
		details = append(details, page.ImageDetails...)
	}
	return details, nil
}

// batchGetImage fetches one image by tag and/or digest. A request with neither is rejected
// without calling the API.
func (ae *amazonECR) batchGetImage(ctx context.Context, repository ecrRepository, tag, imageDigest string) (*ecr.BatchGetImageOutput, error) {
	if tag == "" && imageDigest == "" {
		return nil, &RegistryCallError{Operation: "batch-get-image", Repository: repository.name, RegistryID: repository.registryId, Err: errEmptyImageSelector}
	}

	imageId := ecrTypes.ImageIdentifier{}
	if tag != "" {
		imageId.ImageTag = aws.String(tag)
	}
	if imageDigest != "" {
		imageId.ImageDigest = aws.String(imageDigest)
	}
	input := &ecr.BatchGetImageInput{
		RepositoryName: aws.String(repository.name),
		ImageIds:       []ecrTypes.ImageIdentifier{imageId},
	}
	if repository.registryId != "" {
		input.RegistryId = aws.String(repository.registryId)
	}

	output, err := ae.client.BatchGetImage(ctx, input)
	if err != nil {
		return nil, &RegistryCallError{Operation: "batch-get-image", Repository: repository.name, RegistryID: repository.registryId, Err: err}
	}
	for _, failure := range output.Failures {
		log.Warn().Msgf("batch-get-image failure for %s: %s %s", repository.name, failure.FailureCode, aws.ToString(failure.FailureReason))
	}
	return output, nil
}

func (ae *amazonECR) GetImageFullURL(image DockerImage) string {
	ae.mu.RLock()
	uri := ae.imageToRepositoryUriMap[image.Repository]
	ae.mu.RUnlock()

	if uri == "" {
		return ""
	}
	return uri + ":" + image.Tag
}
