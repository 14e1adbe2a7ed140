package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	awsinterfaces "github.com/bacalhau-project/fridge/pkg/models/interfaces/aws"
)

const defaultSessionNameFormat = "fridge-%d"

// STSExchanger performs the exchange through the AWS SDK, for deployments that talk to
// AWS STS (or a compatible service reachable through the SDK) with a role ARN.
type STSExchanger struct {
	client      awsinterfaces.STSClienter
	roleARN     string
	sessionName string
}

// NewSTSExchanger loads the default AWS configuration with adaptive retries and builds an
// exchanger around an STS client. endpoint overrides the STS endpoint when set.
func NewSTSExchanger(ctx context.Context, region, endpoint, roleARN string) (*STSExchanger, error) {
	if roleARN == "" {
		return nil, fmt.Errorf("role ARN is required for the AWS STS exchanger")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
		// The web identity call is unsigned; no ambient credentials are needed.
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sts.NewFromConfig(cfg, func(o *sts.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewSTSExchangerWithClient(client, roleARN, ""), nil
}

func NewSTSExchangerWithClient(client awsinterfaces.STSClienter, roleARN, sessionName string) *STSExchanger {
	if sessionName == "" {
		sessionName = fmt.Sprintf(defaultSessionNameFormat, time.Now().Unix())
	}
	return &STSExchanger{
		client:      client,
		roleARN:     roleARN,
		sessionName: sessionName,
	}
}

// Exchange implements [Exchanger].
func (e *STSExchanger) Exchange(ctx context.Context, token string) (Credentials, error) {
	out, err := e.client.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(e.roleARN),
		RoleSessionName:  aws.String(e.sessionName),
		WebIdentityToken: aws.String(token),
	})
	if err != nil {
		authErr := &AuthError{Message: "STS request failed", Err: err}
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			authErr.StatusCode = respErr.HTTPStatusCode()
		}
		return Credentials{}, authErr
	}
	if out == nil || out.Credentials == nil {
		return Credentials{}, &AuthError{Message: "invalid STS response", Err: ErrMissingCredentials}
	}

	creds := Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expires:         aws.ToTime(out.Credentials.Expiration),
	}
	if !creds.Valid() || creds.SessionToken == "" {
		return Credentials{}, &AuthError{Message: "invalid STS response", Err: ErrMissingCredentials}
	}
	return creds, nil
}
