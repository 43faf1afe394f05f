package video

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// FakeProvisioner hands out local session ids and HMAC-signed tokens. It is
// wired only in dev when ALLOW_FAKE_VIDEO is set, and in tests.
type FakeProvisioner struct {
	mu       sync.Mutex
	secret   []byte
	sessions []string
	// FailCreate makes CreateSession fail, to exercise provisioning errors.
	FailCreate bool
}

func NewFakeProvisioner(secret string) *FakeProvisioner {
	return &FakeProvisioner{secret: []byte(secret)}
}

func (f *FakeProvisioner) CreateSession(ctx context.Context, mode MediaMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate {
		return "", fmt.Errorf("%w: fake provisioner configured to fail", ErrSessionCreate)
	}
	id := fmt.Sprintf("fake-%s-%s", mode, uuid.NewString())
	f.sessions = append(f.sessions, id)
	return id, nil
}

func (f *FakeProvisioner) IssueToken(sessionID string, opts TokenOptions) (string, error) {
	if sessionID == "" {
		return "", ErrMissingSession
	}
	claims := jwt.MapClaims{
		"session_id":      sessionID,
		"role":            string(opts.Role),
		"connection_data": opts.Data,
		"iat":             time.Now().Unix(),
		"exp":             opts.ExpireTime.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
}

// Sessions returns the ids created so far.
func (f *FakeProvisioner) Sessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}
