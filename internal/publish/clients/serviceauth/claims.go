package serviceauth

import (
	"errors"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// PeekAudience reads the aud claim from an access token without verifying its
// signature. The result is only a hint for choosing an upload audience and
// must never be treated as a validated claim.
func PeekAudience(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Unknown signing algorithms (e.g. ES256K) leave the claims decoded.
		if !errors.Is(err, jwt.ErrTokenUnverifiable) {
			return "", false
		}
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return "", false
	}
	for _, a := range aud {
		if a = strings.TrimSpace(a); a != "" {
			return a, true
		}
	}
	return "", false
}

// FallbackAudience synthesises a did:web audience from the service host.
func FallbackAudience(serviceEndpoint string) string {
	host := strings.TrimSpace(serviceEndpoint)
	if u, err := url.Parse(host); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	} else {
		host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
		host, _, _ = strings.Cut(host, "/")
	}
	return "did:web:" + host
}

// ResolveAudience picks the audience for a scoped token: the access token's
// aud claim when it can be read, else the service host fallback.
func ResolveAudience(accessToken, serviceEndpoint string) string {
	if aud, ok := PeekAudience(accessToken); ok {
		return aud
	}
	return FallbackAudience(serviceEndpoint)
}
