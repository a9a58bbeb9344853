package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/propmanage/propsync/internal/model"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrNotImplemented = errors.New("not implemented")
)

// Error pairs a client-facing message with one of the sentinel errors above.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidf(format string, args ...any) error {
	return &Error{Err: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFound(kind, id string) error {
	return &Error{Err: ErrNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// UserRecord is a user as stored, with its password hash.
type UserRecord struct {
	model.User
	PasswordHash string `json:"passwordHash,omitempty"`
}

// Snapshot is the whole dataset as persisted by a StateBackend.
type Snapshot struct {
	Users         map[string]UserRecord              `json:"users"`
	Properties    map[string]model.Property          `json:"properties"`
	Units         map[string]model.Unit              `json:"units"`
	Tenants       map[string]model.Tenant            `json:"tenants"`
	Payments      map[string]model.Payment           `json:"payments"`
	Tickets       map[string]model.MaintenanceTicket `json:"tickets"`
	Notifications map[string]model.Notification      `json:"notifications"`
	Revenue       []model.MonthlyRevenue             `json:"revenue"`
	UpdatedAt     time.Time                          `json:"updatedAt"`
}

func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	s.ensureMaps()
	return s
}

func (s *Snapshot) ensureMaps() {
	if s.Users == nil {
		s.Users = map[string]UserRecord{}
	}
	if s.Properties == nil {
		s.Properties = map[string]model.Property{}
	}
	if s.Units == nil {
		s.Units = map[string]model.Unit{}
	}
	if s.Tenants == nil {
		s.Tenants = map[string]model.Tenant{}
	}
	if s.Payments == nil {
		s.Payments = map[string]model.Payment{}
	}
	if s.Tickets == nil {
		s.Tickets = map[string]model.MaintenanceTicket{}
	}
	if s.Notifications == nil {
		s.Notifications = map[string]model.Notification{}
	}
}

// StateBackend persists dataset snapshots. Load returns nil, nil when
// nothing has been saved yet.
type StateBackend interface {
	Load() (*Snapshot, error)
	Save(snapshot *Snapshot) error
}

type InMemoryStateBackend struct {
	mu       sync.Mutex
	snapshot []byte
}

func NewInMemoryStateBackend() *InMemoryStateBackend {
	return &InMemoryStateBackend{}
}

func (b *InMemoryStateBackend) Load() (*Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	return decodeSnapshot(b.snapshot)
}

func (b *InMemoryStateBackend) Save(snapshot *Snapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = data
	return nil
}

type JSONFileStateBackend struct {
	Path string
}

func NewJSONFileStateBackend(path string) *JSONFileStateBackend {
	return &JSONFileStateBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileStateBackend) Load() (*Snapshot, error) {
	if b == nil || b.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

func (b *JSONFileStateBackend) Save(snapshot *Snapshot) error {
	if b == nil || b.Path == "" || snapshot == nil {
		return nil
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".propmanage-state-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snapshot.ensureMaps()
	return &snapshot, nil
}

// BuildStateBackendFromDSN picks a backend by the DSN's scheme. Registered
// factories take precedence over the built-in schemes. An empty DSN means
// an in-memory backend.
func BuildStateBackendFromDSN(dsn string) (StateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryStateBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeBackendScheme(parsed.Scheme)
	if factory, ok := lookupStateBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileStateBackend(path), nil
	case "memory", "mem", "inmem":
		return NewInMemoryStateBackend(), nil
	case "postgres", "postgresql":
		backend, err := NewPostgresStateBackend(dsn)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "redis", "rediss":
		backend, err := NewRedisStateBackend(dsn)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "mysql", "sqlite":
		return nil, fmt.Errorf("%w: state backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported state backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if strings.TrimSpace(parsed.Scheme) == "" {
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if parsed.Host != "" {
		// file://relative/dir/state.json
		path = parsed.Host + path
	}
	if path == "" {
		return "", invalidf("file dsn %q has no path", raw)
	}
	return path, nil
}
