package session

import (
	"context"
	"sync"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
)

var errNoCredentials = failure.New(failure.KindAuth, "no session configured: set a handle and app password or an access token")

// Source hands out the session used by publish calls. A login-backed source
// authenticates on first use and reuses the session afterwards; a failed login
// is not cached.
type Source struct {
	client *Client
	creds  models.Credentials

	mu      sync.Mutex
	session *models.Session
}

// NewSource creates a source that logs in with creds on first use.
func NewSource(client *Client, creds models.Credentials) *Source {
	return &Source{client: client, creds: creds}
}

// StaticSource wraps an existing session.
func StaticSource(sess *models.Session) *Source {
	return &Source{session: sess}
}

// Session returns the cached session, logging in when none exists yet.
func (s *Source) Session(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session, nil
	}
	if s.client == nil {
		return nil, errNoCredentials
	}
	sess, err := s.client.CreateSession(ctx, s.creds)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// Reset drops a login-backed session so the next call authenticates again.
// Static sessions are kept.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.session = nil
	}
}
