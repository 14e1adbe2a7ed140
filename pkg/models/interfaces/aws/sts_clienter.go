package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSClienter defines the interface for AWS STS client operations used by the
// SDK-backed credential exchanger.
type STSClienter interface {
	AssumeRoleWithWebIdentity(
		ctx context.Context,
		params *sts.AssumeRoleWithWebIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

var _ STSClienter = (*sts.Client)(nil)
