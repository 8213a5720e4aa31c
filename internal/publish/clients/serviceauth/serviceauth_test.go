package serviceauth

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fixture-key"))
	require.NoError(t, err)
	return token
}

func TestPeekAudience(t *testing.T) {
	t.Run("string aud", func(t *testing.T) {
		aud, ok := PeekAudience(signedToken(t, jwt.MapClaims{"aud": "did:web:pds.example.test"}))
		assert.True(t, ok)
		assert.Equal(t, "did:web:pds.example.test", aud)
	})

	t.Run("array aud takes first non-empty", func(t *testing.T) {
		aud, ok := PeekAudience(signedToken(t, jwt.MapClaims{"aud": []string{" ", "did:web:b"}}))
		assert.True(t, ok)
		assert.Equal(t, "did:web:b", aud)
	})

	t.Run("unknown signing algorithm still decodes claims", func(t *testing.T) {
		enc := base64.RawURLEncoding
		token := enc.EncodeToString([]byte(`{"alg":"ES256K","typ":"JWT"}`)) + "." +
			enc.EncodeToString([]byte(`{"aud":"did:web:k256.example.test"}`)) + ".c2ln"
		aud, ok := PeekAudience(token)
		assert.True(t, ok)
		assert.Equal(t, "did:web:k256.example.test", aud)
	})

	t.Run("missing aud", func(t *testing.T) {
		_, ok := PeekAudience(signedToken(t, jwt.MapClaims{"sub": "did:plc:abc"}))
		assert.False(t, ok)
	})

	t.Run("malformed token", func(t *testing.T) {
		for _, token := range []string{"", "not-a-jwt", "a.%%%.c"} {
			_, ok := PeekAudience(token)
			assert.False(t, ok, token)
		}
	})
}

func TestFallbackAudience(t *testing.T) {
	assert.Equal(t, "did:web:bsky.social", FallbackAudience("https://bsky.social"))
	assert.Equal(t, "did:web:pds.example.test", FallbackAudience("https://pds.example.test:8443/base/"))
	assert.Equal(t, "did:web:pds.example.test", FallbackAudience("pds.example.test/x"))
}

type MintSuite struct {
	suite.Suite
	srv    *httptest.Server
	mu     sync.Mutex
	query  url.Values
	auth   string
	status int
	body   string
	now    time.Time
}

func TestMintSuite(t *testing.T) {
	suite.Run(t, new(MintSuite))
}

func (s *MintSuite) SetupTest() {
	s.status = http.StatusOK
	s.body = `{"token":"scoped"}`
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/"+models.NSIDGetServiceAuth {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.query = r.URL.Query()
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.body)
	}))
}

func (s *MintSuite) TearDownTest() {
	s.srv.Close()
}

func (s *MintSuite) minter() *Minter {
	return New(WithClock(func() time.Time { return s.now }))
}

func (s *MintSuite) TestAudienceFromClaims() {
	access := signedToken(s.T(), jwt.MapClaims{"aud": "did:web:pds.example.test", "sub": "did:plc:abc"})
	sess := &models.Session{AccessToken: access, DID: "did:plc:abc", ServiceEndpoint: s.srv.URL}

	tok, err := s.minter().Mint(context.Background(), sess, models.CapabilityUploadBlob)

	s.Require().NoError(err)
	s.Equal("scoped", tok.Token)
	s.Equal("did:web:pds.example.test", tok.Audience)
	s.Equal(s.now.Add(30*time.Minute), tok.ExpiresAt)

	s.Equal("did:web:pds.example.test", s.query.Get("aud"))
	s.Equal(models.CapabilityUploadBlob, s.query.Get("lxm"))
	s.Equal(strconv.FormatInt(s.now.Add(30*time.Minute).Unix(), 10), s.query.Get("exp"))
	s.Equal("Bearer "+access, s.auth)
}

func (s *MintSuite) TestMalformedTokenFallsBackToServiceHost() {
	sess := &models.Session{AccessToken: "opaque", DID: "did:plc:abc", ServiceEndpoint: s.srv.URL}

	tok, err := s.minter().Mint(context.Background(), sess, models.CapabilityUploadBlob)

	s.Require().NoError(err)
	s.Equal("did:web:127.0.0.1", tok.Audience)
	s.Equal("did:web:127.0.0.1", s.query.Get("aud"))
}

func (s *MintSuite) TestRejectedMintIsUploadFailure() {
	s.status = http.StatusBadRequest
	s.body = `{"error":"BadExpiration","message":"expiration too far"}`
	sess := &models.Session{AccessToken: "opaque", DID: "did:plc:abc", ServiceEndpoint: s.srv.URL}

	_, err := s.minter().Mint(context.Background(), sess, models.CapabilityUploadBlob)

	s.Require().ErrorIs(err, failure.Upload)
	s.Contains(failure.Message(err), "expiration too far")
}

func (s *MintSuite) TestMissingTokenInResponse() {
	s.body = `{}`
	sess := &models.Session{AccessToken: "opaque", DID: "did:plc:abc", ServiceEndpoint: s.srv.URL}

	_, err := s.minter().Mint(context.Background(), sess, models.CapabilityUploadBlob)

	s.ErrorIs(err, failure.Upload)
}

func (s *MintSuite) TestNoSession() {
	_, err := s.minter().Mint(context.Background(), nil, models.CapabilityUploadBlob)
	s.ErrorIs(err, failure.Auth)
}
