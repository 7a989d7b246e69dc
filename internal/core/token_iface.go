package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/telecall/internal/domain"
)

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

var (
	ErrUnauthorized = errors.New("token: unauthorized")
	ErrUnavailable  = errors.New("token: provisioner unavailable")
)

// Credential is a short-lived join token scoped to one channel and identity.
type Credential struct {
	Token     string
	Channel   domain.ChannelName
	Identity  domain.Identity
	ExpiresAt time.Time
}

func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenProvisioner mints join credentials. Failures wrap ErrUnauthorized or
// ErrUnavailable.
type TokenProvisioner interface {
	RequestToken(ctx context.Context, channel domain.ChannelName, identity domain.Identity, role Role) (Credential, error)
}
