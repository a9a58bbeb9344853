package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/propmanage/propsync/internal/model"
)

const (
	tokenIssuerName = "propmanage-api"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

func unauthorized(message string) *authError {
	return &authError{status: http.StatusUnauthorized, code: "unauthorized", message: message}
}

type tokenClaims struct {
	Email string         `json:"email"`
	Role  model.UserRole `json:"role"`
	Type  string         `json:"typ"`
	jwt.RegisteredClaims
}

// tokenIssuer signs and verifies the HS256 access/refresh pair.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func (ti *tokenIssuer) issue(user model.User) (model.AuthTokens, error) {
	access, err := ti.sign(user, tokenTypeAccess, ti.accessTTL)
	if err != nil {
		return model.AuthTokens{}, err
	}
	refresh, err := ti.sign(user, tokenTypeRefresh, ti.refreshTTL)
	if err != nil {
		return model.AuthTokens{}, err
	}
	return model.AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(ti.accessTTL / time.Second),
	}, nil
}

func (ti *tokenIssuer) sign(user model.User, kind string, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := tokenClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    tokenIssuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

func (ti *tokenIssuer) parse(raw, kind string) (*tokenClaims, *authError) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithTimeFunc(ti.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, unauthorized("token expired")
	case err != nil:
		return nil, unauthorized("invalid token")
	}
	if claims.Type != kind {
		return nil, unauthorized("wrong token type")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, unauthorized("token has no subject")
	}
	return claims, nil
}

// authorizeBearer accepts the Authorization header, falling back to a token
// query parameter for browser websocket clients that cannot set headers.
func (ti *tokenIssuer) authorizeBearer(r *http.Request) (*tokenClaims, *authError) {
	raw := ""
	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		raw = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case header == "":
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if raw == "" {
		return nil, unauthorized("missing or invalid bearer token")
	}
	return ti.parse(raw, tokenTypeAccess)
}

func requireRole(claims *tokenClaims, roles ...model.UserRole) *authError {
	for _, role := range roles {
		if claims.Role == role {
			return nil
		}
	}
	return &authError{status: http.StatusForbidden, code: "forbidden", message: "insufficient role"}
}
