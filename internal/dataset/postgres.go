package dataset

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresRecordsTable     = "propmanage_records"
	postgresOperationTimeout = 5 * time.Second
)

// Record kinds, one per snapshot collection. Revenue and the snapshot's
// update time are stored as single rows.
const (
	recordUsers         = "users"
	recordProperties    = "properties"
	recordUnits         = "units"
	recordTenants       = "tenants"
	recordPayments      = "payments"
	recordTickets       = "tickets"
	recordNotifications = "notifications"
	recordRevenue       = "revenue"
	recordMeta          = "meta"

	revenueRecordID   = "months"
	updatedAtRecordID = "updatedAt"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// postgresRecord is one row: a single user, property, unit and so on.
type postgresRecord struct {
	kind string
	id   string
	doc  []byte
}

// PostgresStateBackend stores every dataset record in its own row keyed by
// (kind, id). The table is created on first use.
type PostgresStateBackend struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStateBackend(dsn string) (*PostgresStateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, invalidf("postgres dsn is empty")
	}
	return &PostgresStateBackend{
		dsn:       dsn,
		tableName: postgresRecordsTable,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresStateBackend) Load() (*Snapshot, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT kind, id, doc FROM %s ORDER BY kind, id", postgresQuoteIdentifier(b.tableName))
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := NewSnapshot()
	found := false
	for rows.Next() {
		var rec postgresRecord
		if err := rows.Scan(&rec.kind, &rec.id, &rec.doc); err != nil {
			return nil, err
		}
		if err := snapshot.applyRecord(rec); err != nil {
			return nil, err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return snapshot, nil
}

// Save replaces the stored records with snapshot's in one transaction.
func (b *PostgresStateBackend) Save(snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	records, err := snapshotRecords(snapshot)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	table := postgresQuoteIdentifier(b.tableName)
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (kind, id, doc, updated_at) VALUES ($1, $2, $3, NOW())", table))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.kind, rec.id, string(rec.doc)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", rec.kind, rec.id, err)
		}
	}
	return tx.Commit()
}

func (b *PostgresStateBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *PostgresStateBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kind TEXT NOT NULL,
				id TEXT NOT NULL,
				doc JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (kind, id)
			)`, postgresQuoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("create %s: %w", b.tableName, err)
			return
		}
		b.db = db
	})
	return b.initErr
}

// snapshotRecords flattens snapshot into rows ordered by kind and id.
func snapshotRecords(s *Snapshot) ([]postgresRecord, error) {
	var out []postgresRecord
	var firstErr error
	add := func(kind, id string, v any) {
		if firstErr != nil {
			return
		}
		doc, err := json.Marshal(v)
		if err != nil {
			firstErr = fmt.Errorf("encode %s/%s: %w", kind, id, err)
			return
		}
		out = append(out, postgresRecord{kind: kind, id: id, doc: doc})
	}
	for id, v := range s.Users {
		add(recordUsers, id, v)
	}
	for id, v := range s.Properties {
		add(recordProperties, id, v)
	}
	for id, v := range s.Units {
		add(recordUnits, id, v)
	}
	for id, v := range s.Tenants {
		add(recordTenants, id, v)
	}
	for id, v := range s.Payments {
		add(recordPayments, id, v)
	}
	for id, v := range s.Tickets {
		add(recordTickets, id, v)
	}
	for id, v := range s.Notifications {
		add(recordNotifications, id, v)
	}
	if len(s.Revenue) > 0 {
		add(recordRevenue, revenueRecordID, s.Revenue)
	}
	add(recordMeta, updatedAtRecordID, s.UpdatedAt)
	if firstErr != nil {
		return nil, firstErr
	}
	slices.SortFunc(out, func(a, b postgresRecord) int {
		if c := cmp.Compare(a.kind, b.kind); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return out, nil
}

func (s *Snapshot) applyRecord(rec postgresRecord) error {
	s.ensureMaps()
	switch rec.kind {
	case recordUsers:
		return decodeRecord(s.Users, rec)
	case recordProperties:
		return decodeRecord(s.Properties, rec)
	case recordUnits:
		return decodeRecord(s.Units, rec)
	case recordTenants:
		return decodeRecord(s.Tenants, rec)
	case recordPayments:
		return decodeRecord(s.Payments, rec)
	case recordTickets:
		return decodeRecord(s.Tickets, rec)
	case recordNotifications:
		return decodeRecord(s.Notifications, rec)
	case recordRevenue:
		return json.Unmarshal(rec.doc, &s.Revenue)
	case recordMeta:
		if rec.id == updatedAtRecordID {
			return json.Unmarshal(rec.doc, &s.UpdatedAt)
		}
		return nil
	default:
		return fmt.Errorf("unknown record kind %q", rec.kind)
	}
}

func decodeRecord[T any](into map[string]T, rec postgresRecord) error {
	var v T
	if err := json.Unmarshal(rec.doc, &v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", rec.kind, rec.id, err)
	}
	into[rec.id] = v
	return nil
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
