package testdata

import "fmt"

// STSCredentialsResponse renders an AssumeRoleWithWebIdentity response body as returned
// by a MinIO STS endpoint.
func STSCredentialsResponse(accessKey, secretKey, sessionToken string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<AssumeRoleWithWebIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <AssumeRoleWithWebIdentityResult>
    <AssumedRoleUser>
      <Arn></Arn>
      <AssumeRoleId></AssumeRoleId>
    </AssumedRoleUser>
    <Credentials>
      <AccessKeyId>%s</AccessKeyId>
      <SecretAccessKey>%s</SecretAccessKey>
      <SessionToken>%s</SessionToken>
      <Expiration>2030-01-02T15:04:05Z</Expiration>
    </Credentials>
    <SubjectFromWebIdentityToken>system:serviceaccount:argo-workflows:argo-workflow</SubjectFromWebIdentityToken>
  </AssumeRoleWithWebIdentityResult>
  <ResponseMetadata>
    <RequestId>17F0E4A8D6C2B3A1</RequestId>
  </ResponseMetadata>
</AssumeRoleWithWebIdentityResponse>`, accessKey, secretKey, sessionToken)
}

const STSResponseMissingSessionToken = `<AssumeRoleWithWebIdentityResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <AssumeRoleWithWebIdentityResult>
    <Credentials>
      <AccessKeyId>AKIAEXAMPLE</AccessKeyId>
      <SecretAccessKey>secret</SecretAccessKey>
    </Credentials>
  </AssumeRoleWithWebIdentityResult>
</AssumeRoleWithWebIdentityResponse>`

const STSResponseWrongNamespace = `<AssumeRoleWithWebIdentityResponse xmlns="https://example.com/not-sts/">
  <AssumeRoleWithWebIdentityResult>
    <Credentials>
      <AccessKeyId>AKIAEXAMPLE</AccessKeyId>
      <SecretAccessKey>secret</SecretAccessKey>
      <SessionToken>session</SessionToken>
    </Credentials>
  </AssumeRoleWithWebIdentityResult>
</AssumeRoleWithWebIdentityResponse>`

const STSErrorResponse = `<ErrorResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <Error>
    <Type></Type>
    <Code>AccessDenied</Code>
    <Message>Access denied: Invalid Token</Message>
  </Error>
  <RequestId>17F0E4A8D6C2B3A2</RequestId>
</ErrorResponse>`
