package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/systmms/credbroker/pkg/credential"
)

// SecretsManagerClientAPI defines the AWS Secrets Manager operations used by
// the plugin. This allows for mocking in tests.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// STSClientAPI defines the STS operations used for credential validation.
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWSSecretsManagerPlugin propagates credentials into AWS Secrets Manager.
type AWSSecretsManagerPlugin struct {
	name   string
	client SecretsManagerClientAPI
	stsAPI STSClientAPI
	prefix string
}

// AWSPluginOption is a functional option for configuring AWS plugins.
type AWSPluginOption func(*AWSSecretsManagerPlugin)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing).
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSPluginOption {
	return func(p *AWSSecretsManagerPlugin) {
		p.client = client
	}
}

// WithSTSClient sets a custom STS client (for testing).
func WithSTSClient(client STSClientAPI) AWSPluginOption {
	return func(p *AWSSecretsManagerPlugin) {
		p.stsAPI = client
	}
}

// NewAWSSecretsManagerPluginFactory creates the aws.secretsmanager factory.
func NewAWSSecretsManagerPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	return NewAWSSecretsManagerPlugin(name, cfg)
}

// NewAWSSecretsManagerPlugin creates a new AWS Secrets Manager plugin.
func NewAWSSecretsManagerPlugin(name string, cfg map[string]interface{}, opts ...AWSPluginOption) (*AWSSecretsManagerPlugin, error) {
	region := configString(cfg, "region")
	if region == "" {
		region = "us-east-1"
	}

	p := &AWSSecretsManagerPlugin{
		name:   name,
		prefix: strings.TrimSuffix(configString(cfg, "prefix"), "/"),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		awsCfg, err := loadAWSConfig(region, cfg)
		if err != nil {
			return nil, err
		}
		smOpts := func(o *secretsmanager.Options) {
			if endpoint := configString(cfg, "endpoint"); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}
		p.client = secretsmanager.NewFromConfig(awsCfg, smOpts)
		p.stsAPI = sts.NewFromConfig(awsCfg)
	}

	return p, nil
}

// loadAWSConfig builds an aws.Config honoring region, static credentials and
// custom endpoints (for LocalStack and testing).
func loadAWSConfig(region string, cfg map[string]interface{}) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(region))

	accessKeyID := configString(cfg, "access_key_id")
	secretAccessKey := configString(cfg, "secret_access_key")
	if accessKeyID != "" && secretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Name returns the plugin type identifier.
func (p *AWSSecretsManagerPlugin) Name() string {
	return "aws.secretsmanager"
}

func (p *AWSSecretsManagerPlugin) secretID(account credential.Account, kind credential.Kind) string {
	id := fmt.Sprintf("%s/%s/%s", account.Asset, account.Name, kind)
	if p.prefix != "" {
		id = p.prefix + "/" + id
	}
	return id
}

// Push writes the credential as the current secret version, creating the
// secret on first use.
func (p *AWSSecretsManagerPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	secretID := p.secretID(account, kind)

	_, err := p.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secretID),
		SecretBinary: value,
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	_, err = p.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretID),
		SecretBinary: value,
	})
	if err != nil {
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

// Pull retrieves the store-side credential for reverse flow.
func (p *AWSSecretsManagerPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID(account, kind)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret value: %w", err)
	}

	if out.SecretBinary != nil {
		return out.SecretBinary, nil
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return nil, fmt.Errorf("secret %s has no value", p.secretID(account, kind))
}

// RefreshCredentials validates the cached AWS credentials by resolving the
// caller identity.
func (p *AWSSecretsManagerPlugin) RefreshCredentials(ctx context.Context) error {
	if p.stsAPI == nil {
		return nil
	}
	if _, err := p.stsAPI.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return fmt.Errorf("aws credential check failed: %w", err)
	}
	return nil
}
