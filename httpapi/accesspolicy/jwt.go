package accesspolicy

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned when a bearer token is missing, malformed,
// or fails signature verification.
var ErrTokenInvalid = errors.New("accesspolicy: invalid token")

// ErrTokenExpired is returned when a bearer token's signature verifies
// but it has expired.
var ErrTokenExpired = errors.New("accesspolicy: token expired")

// Claims is the custom payload carried by a qjazz access token: the
// service it scopes access to, the process IDs ("*" for all) it may
// execute, and the project path it is pinned to.
type Claims struct {
	jwt.RegisteredClaims

	Service   string   `json:"service"`
	Processes []string `json:"processes,omitempty"`
	Project   string   `json:"project,omitempty"`
}

func (c *Claims) allowsProcess(processID string) bool {
	if len(c.Processes) == 0 {
		return true
	}
	return slices.Contains(c.Processes, "*") || slices.Contains(c.Processes, processID)
}

// JWTPolicy is the default AccessPolicy: an HS256 bearer token scopes a
// request to one service, an optional process allow-list, and an
// optional project. It generalizes accesspolicy.py's
// DefaultAccessPolicy to Go's golang-jwt/v5.
type JWTPolicy struct {
	Secret     []byte
	Issuer     string
	PathPrefix string
}

// NewJWTPolicy constructs a JWTPolicy with an HMAC secret and issuer.
func NewJWTPolicy(secret []byte, issuer, prefix string) *JWTPolicy {
	return &JWTPolicy{Secret: secret, Issuer: issuer, PathPrefix: prefix}
}

func (p *JWTPolicy) claims(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("accesspolicy: unexpected signing method")
			}
			return p.Secret, nil
		},
		jwt.WithIssuer(p.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (p *JWTPolicy) ServicePermission(r *http.Request, service string) bool {
	claims, err := p.claims(r)
	if err != nil {
		return false
	}
	return claims.Service == service || claims.Service == "*"
}

func (p *JWTPolicy) ExecutePermission(r *http.Request, service, processID, project string) bool {
	claims, err := p.claims(r)
	if err != nil {
		return false
	}
	if claims.Service != service && claims.Service != "*" {
		return false
	}
	if claims.Project != "" && project != "" && claims.Project != project {
		return false
	}
	return claims.allowsProcess(processID)
}

func (p *JWTPolicy) GetService(r *http.Request) string {
	claims, err := p.claims(r)
	if err != nil {
		return ""
	}
	return claims.Service
}

func (p *JWTPolicy) GetProject(r *http.Request) string {
	claims, err := p.claims(r)
	if err != nil {
		return ""
	}
	return claims.Project
}

func (p *JWTPolicy) Prefix() string {
	return p.PathPrefix
}

func (p *JWTPolicy) FormatPath(r *http.Request, path, service, project, query string) string {
	out := p.PathPrefix + path
	if query != "" {
		out += "?" + query
	}
	return out
}
