package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/websocket"
)

const (
	defaultTokenIssuer = "stardrive"
	defaultTokenTTL    = time.Hour * 24
)

// Authenticator issues and verifies HS256 signed bearer tokens.
type Authenticator struct {
	Secret []byte

	// Issuer written to and required in tokens. Defaults to "stardrive".
	Issuer string

	// Lifetime of issued tokens. Defaults to 24 hours.
	TTL time.Duration
}

// Enabled reports whether requests must carry a token.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.Secret) != 0
}

// IssueToken returns a signed token for the given subject.
func (a *Authenticator) IssueToken(subject string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("token secret is not configured").
			WithType(ErrTypeUnauthorized)
	}

	ttl := a.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    a.issuer(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return "", errors.New("signing token failed").
			WithTag("subject", subject).
			Wrap(err)
	}
	return signed, nil
}

// VerifyToken checks the signature, issuer and expiry of a token and returns
// its subject.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("missing token").WithType(ErrTypeUnauthorized)
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.New("invalid token").
			WithType(ErrTypeUnauthorized).
			Wrap(err)
	}
	return claims.Subject, nil
}

func (a *Authenticator) issuer() string {
	if a.Issuer == "" {
		return defaultTokenIssuer
	}
	return a.Issuer
}

// VerifyAuthToken returns a WebSocket handshake rejecting connections without
// a valid token. It accepts every connection when auth is disabled.
func VerifyAuthToken(auth *Authenticator) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if !auth.Enabled() {
			return nil
		}

		if _, err := auth.VerifyToken(GetTokenFromHTTPRequest(r)); err != nil {
			logs.WithTag("remote_addr", r.RemoteAddr).Debug(err)
			return err
		}
		return nil
	}
}

// VerifyAuthTokenHandler rejects requests without a valid token with a 401.
// It serves every request when auth is disabled.
func VerifyAuthTokenHandler(auth *Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if _, err := auth.VerifyToken(GetTokenFromHTTPRequest(r)); err != nil {
			writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetTokenFromHTTPRequest returns the bearer token of the Authorization
// header, or the token query parameter when the header is absent.
func GetTokenFromHTTPRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
