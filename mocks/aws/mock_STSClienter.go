package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/mock"
)

type MockSTSClienter struct {
	mock.Mock
}

func (m *MockSTSClienter) AssumeRoleWithWebIdentity(
	ctx context.Context,
	params *sts.AssumeRoleWithWebIdentityInput,
	optFns ...func(*sts.Options),
) (*sts.AssumeRoleWithWebIdentityOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sts.AssumeRoleWithWebIdentityOutput)
	return out, args.Error(1)
}
