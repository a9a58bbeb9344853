// Package dataset is the property-management data behind the development
// API server: users, properties, units, tenants, payments, maintenance
// tickets and notifications, persisted as one snapshot through a
// pluggable StateBackend.
package dataset

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/model"
)

const (
	// DefaultLimit is the server-side page size when a request names none.
	DefaultLimit      = 10
	minPasswordLength = 8
)

type Options struct {
	Backend StateBackend
	// Seed fills an empty backend with the demo dataset.
	Seed bool
	// PasswordCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	PasswordCost int
	Now          func() time.Time
	Logger       *zap.Logger
}

type Repository struct {
	mu      sync.RWMutex
	state   *Snapshot
	backend StateBackend
	cost    int
	now     func() time.Time
	logger  *zap.Logger
}

// Open loads the backend's snapshot, seeding it first when it is empty and
// opts.Seed is set.
func Open(opts Options) (*Repository, error) {
	r := &Repository{
		backend: opts.Backend,
		cost:    opts.PasswordCost,
		now:     opts.Now,
		logger:  logging.OrNop(opts.Logger).Named("dataset"),
	}
	if r.backend == nil {
		r.backend = NewInMemoryStateBackend()
	}
	if r.cost == 0 {
		r.cost = bcrypt.DefaultCost
	}
	if r.now == nil {
		r.now = time.Now
	}
	snapshot, err := r.backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if snapshot != nil {
		r.state = snapshot
		r.logger.Info("dataset loaded",
			zap.Int("properties", len(snapshot.Properties)),
			zap.Int("users", len(snapshot.Users)),
		)
		return r, nil
	}
	r.state = NewSnapshot()
	if opts.Seed {
		if err := r.seed(); err != nil {
			return nil, fmt.Errorf("seed dataset: %w", err)
		}
		if err := r.commitLocked(); err != nil {
			return nil, err
		}
		r.logger.Info("seeded demo dataset", zap.String("login", DemoEmail))
	}
	return r, nil
}

// Close releases the backend when it holds a connection.
func (r *Repository) Close() error {
	if closer, ok := r.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (r *Repository) commitLocked() error {
	r.state.UpdatedAt = r.now().UTC()
	if err := r.backend.Save(r.state); err != nil {
		r.logger.Error("persist dataset failed", zap.Error(err))
		return fmt.Errorf("persist dataset: %w", err)
	}
	return nil
}

func newID(prefix string) string {
	id := uuid.New()
	return prefix + "_" + hex.EncodeToString(id[:6])
}

// Query narrows a list request. Blank fields do not filter.
type Query struct {
	Page       int
	Limit      int
	Search     string
	Status     string
	Priority   string
	PropertyID string
	TenantID   string
}

func paginate[T any](items []T, q Query) model.Page[T] {
	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, model.MaxLimit)
	total := len(items)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return model.NewPage(slices.Clone(items[start:end]), page, limit, total)
}

// newestFirst orders records by creation time, newest first, breaking ties
// by id so listings are stable.
func newestFirst[T any](records map[string]T, createdAt func(T) time.Time, id func(T) string) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b T) int {
		if c := createdAt(b).Compare(createdAt(a)); c != 0 {
			return c
		}
		return strings.Compare(id(a), id(b))
	})
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matches(value, filter string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || value == filter
}

// Authenticate checks credentials against the stored bcrypt hash.
func (r *Repository) Authenticate(email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.User{}, invalidf("Email and password are required")
	}
	r.mu.RLock()
	rec, ok := r.userByEmailLocked(email)
	r.mu.RUnlock()
	if !ok || rec.PasswordHash == "" {
		return model.User{}, &Error{Err: ErrUnauthorized, Message: "Invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return model.User{}, &Error{Err: ErrUnauthorized, Message: "Invalid email or password"}
	}
	return rec.User, nil
}

func (r *Repository) Register(req model.RegisterRequest) (model.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return model.User{}, invalidf("Name, email, and password are required")
	}
	if err := validEmail(req.Email); err != nil {
		return model.User{}, err
	}
	if len(req.Password) < minPasswordLength {
		return model.User{}, invalidf("Password must be at least %d characters", minPasswordLength)
	}
	if req.Role == "" {
		req.Role = model.RoleTenant
	}
	if !req.Role.Valid() {
		return model.User{}, invalidf("Unknown role %q", req.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), r.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return model.User{}, invalidf("Password is too long")
		}
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.userByEmailLocked(req.Email); exists {
		return model.User{}, &Error{Err: ErrConflict, Message: "An account with this email already exists"}
	}
	now := r.now().UTC()
	rec := UserRecord{
		User: model.User{
			ID:        newID("usr"),
			Email:     req.Email,
			Name:      req.Name,
			Role:      req.Role,
			Phone:     strings.TrimSpace(req.Phone),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: string(hash),
	}
	r.state.Users[rec.ID] = rec
	if err := r.commitLocked(); err != nil {
		return model.User{}, err
	}
	return rec.User, nil
}

func validEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return invalidf("Invalid email address")
	}
	return nil
}

func (r *Repository) UserByID(id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.state.Users[id]
	if !ok {
		return model.User{}, notFound("user", id)
	}
	return rec.User, nil
}

func (r *Repository) userByEmailLocked(email string) (UserRecord, bool) {
	for _, rec := range r.state.Users {
		if strings.EqualFold(rec.Email, email) {
			return rec, true
		}
	}
	return UserRecord{}, false
}

func (r *Repository) notifyLocked(userID string, kind model.NotificationType, title, message, actionURL string) {
	if _, ok := r.state.Users[userID]; !ok {
		return
	}
	n := model.Notification{
		ID:        newID("ntf"),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		ActionURL: actionURL,
		CreatedAt: r.now().UTC(),
	}
	r.state.Notifications[n.ID] = n
}
