package credentials

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Credentials is one set of storage keys. SessionToken and Expires are empty for
// static keys.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
}

// Valid reports whether both halves of the key pair are present.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// AWS converts the credentials into the SDK representation.
func (c Credentials) AWS() aws.Credentials {
	return aws.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Source:          "fridge",
		CanExpire:       !c.Expires.IsZero(),
		Expires:         c.Expires,
	}
}

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateRefreshing:
		return "REFRESHING"
	default:
		return "UNKNOWN"
	}
}
