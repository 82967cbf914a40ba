package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/credbroker/pkg/credential"
)

// SSMClientAPI defines the Parameter Store operations used by the plugin.
type SSMClientAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// AWSSSMPlugin propagates credentials into AWS Systems Manager Parameter
// Store as SecureString parameters.
type AWSSSMPlugin struct {
	name   string
	client SSMClientAPI
	prefix string
}

// NewAWSSSMPluginFactory creates the aws.ssm factory.
func NewAWSSSMPluginFactory(name string, cfg map[string]interface{}) (Plugin, error) {
	return NewAWSSSMPlugin(name, cfg, nil)
}

// NewAWSSSMPlugin creates a new Parameter Store plugin. A non-nil client
// overrides SDK construction (for testing).
func NewAWSSSMPlugin(name string, cfg map[string]interface{}, client SSMClientAPI) (*AWSSSMPlugin, error) {
	prefix := strings.TrimSuffix(configString(cfg, "prefix"), "/")
	if prefix == "" {
		prefix = "/credbroker"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	p := &AWSSSMPlugin{
		name:   name,
		client: client,
		prefix: prefix,
	}

	if p.client == nil {
		region := configString(cfg, "region")
		if region == "" {
			region = "us-east-1"
		}
		awsCfg, err := loadAWSConfig(region, cfg)
		if err != nil {
			return nil, err
		}
		p.client = ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			if endpoint := configString(cfg, "endpoint"); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}

	return p, nil
}

// Name returns the plugin type identifier.
func (p *AWSSSMPlugin) Name() string {
	return "aws.ssm"
}

func (p *AWSSSMPlugin) parameterName(account credential.Account, kind credential.Kind) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.prefix, account.Asset, account.Name, kind)
}

// Push writes the credential as an encrypted parameter, overwriting any
// previous version.
func (p *AWSSSMPlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	_, err := p.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(p.parameterName(account, kind)),
		Value:     aws.String(string(value)),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter: %w", err)
	}
	return nil
}

// Pull retrieves the store-side credential for reverse flow.
func (p *AWSSSMPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.parameterName(account, kind)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", p.parameterName(account, kind))
	}
	return []byte(*out.Parameter.Value), nil
}
