// Package gateway exposes one typed function per remote operation of the
// property-management API, validating inputs before any network call.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/model"
	"github.com/propmanage/propsync/internal/transport"
)

const (
	ResourceAuth          = model.ResourceAuth
	ResourceProperties    = model.ResourceProperties
	ResourceUnits         = model.ResourceUnits
	ResourceTenants       = model.ResourceTenants
	ResourcePayments      = model.ResourcePayments
	ResourceTickets       = model.ResourceTickets
	ResourceNotifications = model.ResourceNotifications
	ResourceDashboard     = model.ResourceDashboard
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Sender executes one request/response exchange.
type Sender interface {
	Send(ctx context.Context, method, path string, body any, query transport.Query) (*model.Envelope, error)
	Session() *transport.Session
}

type Gateway struct {
	client Sender
	logger *zap.Logger
}

func New(client Sender, logger *zap.Logger) *Gateway {
	return &Gateway{client: client, logger: logging.OrNop(logger).Named("gateway")}
}

func (g *Gateway) Session() *transport.Session {
	return g.client.Session()
}

// Login authenticates and installs the returned tokens in the session.
func (g *Gateway) Login(ctx context.Context, email, password string) (model.AuthResponse, error) {
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		return model.AuthResponse{}, transport.Validationf("a valid email is required")
	}
	if password == "" {
		return model.AuthResponse{}, transport.Validationf("password is required")
	}
	return g.authenticate(ctx, "auth/login", model.LoginCredentials{Email: email, Password: password})
}

func (g *Gateway) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return model.AuthResponse{}, transport.Validationf("name is required")
	}
	if !ValidEmail(req.Email) {
		return model.AuthResponse{}, transport.Validationf("a valid email is required")
	}
	if req.Password == "" {
		return model.AuthResponse{}, transport.Validationf("password is required")
	}
	if req.Role == "" {
		req.Role = model.RoleTenant
	}
	if !req.Role.Valid() {
		return model.AuthResponse{}, transport.Validationf("unknown role %q", req.Role)
	}
	return g.authenticate(ctx, "auth/register", req)
}

// RefreshToken trades a refresh token for new tokens. An empty token means
// the one held by the session. A rejected refresh token clears the session.
func (g *Gateway) RefreshToken(ctx context.Context, token string) (model.AuthResponse, error) {
	session := g.Session()
	if token == "" {
		token = session.RefreshToken()
	}
	if token == "" {
		return model.AuthResponse{}, transport.Validationf("refresh token is required")
	}
	resp, err := g.authenticate(ctx, "auth/refresh", map[string]string{"refreshToken": token})
	if te, ok := transport.AsError(err); ok && te.Kind == transport.KindHTTP && te.Status == http.StatusUnauthorized {
		session.Clear()
	}
	return resp, err
}

// Logout forgets the session credentials.
func (g *Gateway) Logout() {
	g.Session().Clear()
}

func (g *Gateway) authenticate(ctx context.Context, path string, body any) (model.AuthResponse, error) {
	env, err := g.client.Send(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return model.AuthResponse{}, err
	}
	resp, err := decodeRequired[model.AuthResponse](env)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if resp.Tokens.AccessToken == "" {
		return model.AuthResponse{}, &transport.Error{Kind: transport.KindMalformed, Message: "auth response carries no access token"}
	}
	g.Session().SetTokens(resp.Tokens)
	g.logger.Info("session established", zap.String("user", resp.User.ID), zap.String("role", string(resp.User.Role)))
	return resp, nil
}

// ValidEmail applies the same loose shape check as the sign-in form.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// normalizePage applies the defaults for unset values, rejects negative
// ones and clamps limit to the maximum page size.
func normalizePage(page, limit int) (int, int, error) {
	if page < 0 {
		return 0, 0, transport.Validationf("page must be positive, got %d", page)
	}
	if limit < 0 {
		return 0, 0, transport.Validationf("limit must be positive, got %d", limit)
	}
	if page == 0 {
		page = model.DefaultPage
	}
	if limit == 0 {
		limit = model.DefaultLimit
	}
	return page, min(limit, model.MaxLimit), nil
}

func optional(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return strings.TrimSpace(value)
}

func requireID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", transport.Validationf("%s id is required", kind)
	}
	return url.PathEscape(id), nil
}

func decode[T any](env *model.Envelope) (T, error) {
	var out T
	err := transport.DecodeData(env, &out)
	return out, err
}

func decodeRequired[T any](env *model.Envelope) (T, error) {
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		var zero T
		return zero, &transport.Error{Kind: transport.KindMalformed, Message: "response carries no data"}
	}
	return decode[T](env)
}

func listPage[T any](ctx context.Context, g *Gateway, path string, page, limit int, query transport.Query) (model.Page[T], error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return model.Page[T]{}, err
	}
	if query == nil {
		query = transport.Query{}
	}
	query["page"] = page
	query["limit"] = limit
	env, err := g.client.Send(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return model.Page[T]{}, err
	}
	items, err := decode[[]T](env)
	if err != nil {
		return model.Page[T]{}, err
	}
	if env.Page > 0 {
		page = env.Page
	}
	if env.Limit > 0 {
		limit = env.Limit
	}
	return model.NewPage(items, page, limit, env.Total), nil
}

func send[T any](ctx context.Context, g *Gateway, method, path string, body any) (T, error) {
	env, err := g.client.Send(ctx, method, path, body, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeRequired[T](env)
}
