package gateway

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/smithy-go"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

const (
	inventoryRetrieval = "inventory-retrieval"
	archiveRetrieval   = "archive-retrieval"
)

// GlacierConfig holds the Amazon Glacier settings.
type GlacierConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the default service endpoint.
	Endpoint string
	// AccountID defaults to the account owning the credentials.
	AccountID string
}

// GlacierAPI is the subset of the Glacier client used by the gateway.
type GlacierAPI interface {
	CreateVault(ctx context.Context, params *glacier.CreateVaultInput, optFns ...func(*glacier.Options)) (*glacier.CreateVaultOutput, error)
	DeleteVault(ctx context.Context, params *glacier.DeleteVaultInput, optFns ...func(*glacier.Options)) (*glacier.DeleteVaultOutput, error)
	UploadArchive(ctx context.Context, params *glacier.UploadArchiveInput, optFns ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error)
	DeleteArchive(ctx context.Context, params *glacier.DeleteArchiveInput, optFns ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error)
	InitiateJob(ctx context.Context, params *glacier.InitiateJobInput, optFns ...func(*glacier.Options)) (*glacier.InitiateJobOutput, error)
	DescribeJob(ctx context.Context, params *glacier.DescribeJobInput, optFns ...func(*glacier.Options)) (*glacier.DescribeJobOutput, error)
	GetJobOutput(ctx context.Context, params *glacier.GetJobOutputInput, optFns ...func(*glacier.Options)) (*glacier.GetJobOutputOutput, error)
}

type glacierGateway struct {
	client  GlacierAPI
	account string
}

// NewGlacier returns a Gateway backed by Amazon Glacier.
func NewGlacier(ctx context.Context, cfg GlacierConfig) (Gateway, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awscfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "could not load aws configuration")
	}

	client := glacier.NewFromConfig(awscfg, func(o *glacier.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewGlacierWithClient(client, cfg.AccountID), nil
}

// NewGlacierWithClient returns a Gateway using the given client.
func NewGlacierWithClient(client GlacierAPI, account string) Gateway {
	if account == "" {
		account = "-"
	}
	return &glacierGateway{
		client:  client,
		account: account,
	}
}

func (g *glacierGateway) Name() string {
	return "glacier"
}

func (g *glacierGateway) CreateContainer(ctx context.Context, name string) error {
	_, err := g.client.CreateVault(ctx, &glacier.CreateVaultInput{
		AccountId: aws.String(g.account),
		VaultName: aws.String(name),
	})
	return classify("create vault "+name, err, ErrObjectNotFound)
}

func (g *glacierGateway) DeleteContainer(ctx context.Context, name string) error {
	_, err := g.client.DeleteVault(ctx, &glacier.DeleteVaultInput{
		AccountId: aws.String(g.account),
		VaultName: aws.String(name),
	})
	return classify("delete vault "+name, err, ErrObjectNotFound)
}

func (g *glacierGateway) UploadObject(ctx context.Context, container, filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", errors.Wrap(err, "could not open file")
	}
	defer f.Close()

	out, err := g.client.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(g.account),
		VaultName:          aws.String(container),
		ArchiveDescription: aws.String(filename),
		Body:               f,
	})
	if err != nil {
		return "", classify("upload "+filename, err, ErrObjectNotFound)
	}
	return aws.ToString(out.ArchiveId), nil
}

func (g *glacierGateway) DeleteObject(ctx context.Context, container, archiveID string) error {
	_, err := g.client.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String(g.account),
		VaultName: aws.String(container),
		ArchiveId: aws.String(archiveID),
	})
	return classify("delete archive "+archiveID, err, ErrObjectNotFound)
}

func (g *glacierGateway) SubmitInventoryJob(ctx context.Context, container string) (string, error) {
	return g.initiate(ctx, container, &types.JobParameters{
		Type:   aws.String(inventoryRetrieval),
		Format: aws.String("JSON"),
	})
}

func (g *glacierGateway) SubmitRetrievalJob(ctx context.Context, container, archiveID string) (string, error) {
	return g.initiate(ctx, container, &types.JobParameters{
		Type:      aws.String(archiveRetrieval),
		ArchiveId: aws.String(archiveID),
	})
}

func (g *glacierGateway) initiate(ctx context.Context, container string, params *types.JobParameters) (string, error) {
	out, err := g.client.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     aws.String(g.account),
		VaultName:     aws.String(container),
		JobParameters: params,
	})
	if err != nil {
		return "", classify("initiate "+aws.ToString(params.Type), err, ErrObjectNotFound)
	}
	return aws.ToString(out.JobId), nil
}

func (g *glacierGateway) GetJobStatus(ctx context.Context, container, jobID string) (model.StatusCode, error) {
	out, err := g.client.DescribeJob(ctx, &glacier.DescribeJobInput{
		AccountId: aws.String(g.account),
		VaultName: aws.String(container),
		JobId:     aws.String(jobID),
	})
	if err != nil {
		return "", classify("describe job "+jobID, err, ErrJobNotFound)
	}

	status, err := model.ParseStatusCode(string(out.StatusCode))
	if err != nil {
		return "", rejected("describe job "+jobID, err)
	}
	return status, nil
}

func (g *glacierGateway) GetJobOutput(ctx context.Context, container, jobID string) (*JobOutput, error) {
	out, err := g.client.GetJobOutput(ctx, &glacier.GetJobOutputInput{
		AccountId: aws.String(g.account),
		VaultName: aws.String(container),
		JobId:     aws.String(jobID),
	})
	if err != nil {
		return nil, classify("job output "+jobID, err, ErrJobNotFound)
	}

	if !strings.HasPrefix(aws.ToString(out.ContentType), "application/json") {
		return &JobOutput{Body: out.Body}, nil
	}

	defer out.Body.Close()
	var inventory Inventory
	if err = json.NewDecoder(out.Body).Decode(&inventory); err != nil {
		return nil, unavailable("job output "+jobID, errors.Wrap(err, "could not decode inventory"))
	}
	return &JobOutput{Inventory: &inventory}, nil
}

// classify maps an AWS error to the gateway error taxonomy.
// A ResourceNotFoundException is reported as notfound.
func classify(op string, err error, notfound error) error {
	if err == nil {
		return nil
	}

	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return rejected(op, errors.Wrap(notfound, rnf.ErrorMessage()))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ServiceUnavailableException",
			"RequestTimeoutException",
			"LimitExceededException",
			"ThrottlingException",
			"AccessDeniedException",
			"UnrecognizedClientException",
			"InvalidSignatureException",
			"ExpiredTokenException",
			"MissingAuthenticationTokenException":
			return unavailable(op, err)
		}

		if apiErr.ErrorFault() == smithy.FaultServer {
			return unavailable(op, err)
		}
		return rejected(op, err)
	}

	return unavailable(op, err)
}
