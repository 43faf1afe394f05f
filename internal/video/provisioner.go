package video

import (
	"context"
	"errors"
	"time"
)

type MediaMode string

const (
	// MediaRouted sends media through the provider's servers (required for
	// archiving and more than two participants).
	MediaRouted  MediaMode = "routed"
	MediaRelayed MediaMode = "relayed"
)

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
	RoleModerator  Role = "moderator"
)

var (
	ErrInvalidConfig  = errors.New("video: invalid provider configuration")
	ErrSessionCreate  = errors.New("video: create session failed")
	ErrTokenIssue     = errors.New("video: issue token failed")
	ErrMissingSession = errors.New("video: session id is required")
)

// TokenOptions describe a client token. Data is opaque to the provisioner
// and handed to the video layer with the connection.
type TokenOptions struct {
	Role       Role
	ExpireTime time.Time
	Data       string
}

// Provisioner creates video sessions and time-boxed access tokens.
type Provisioner interface {
	CreateSession(ctx context.Context, mode MediaMode) (string, error)
	IssueToken(sessionID string, opts TokenOptions) (string, error)
}
