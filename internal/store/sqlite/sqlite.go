// Package sqlite provides the SQLite-backed contact store.
//
// The table is keyed uniquely by phone number (the natural key used for
// reconciliation matching); the surrogate id is generated on first insert and
// survives every subsequent upsert. The database is opened in WAL mode so
// feed reads do not block reconciliation writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// Store implements the reconcile.Store interface using SQLite.
type Store struct {
	db *sql.DB

	// hardDelete removes rows on DeleteByPhone instead of deactivating them.
	hardDelete bool
}

// Option configures the store.
type Option func(*Store)

// WithHardDelete makes DeleteByPhone remove rows permanently. The default
// deactivates them, keeping an audit trail of contacts that left the source.
func WithHardDelete() Option {
	return func(s *Store) { s.hardDelete = true }
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}

	store := &Store{db: db}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrStoreMigrate, err)
	}

	slog.Debug(config.MsgStoreReady,
		config.LogKeyComponent, config.CompStore,
		config.LogKeyFile, dbPath,
	)
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT NOT NULL,
		phone TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		birthday TEXT,
		year_known BOOLEAN NOT NULL DEFAULT FALSE,
		year_met INTEGER NOT NULL DEFAULT 0,
		email TEXT,
		locations TEXT,
		affiliations TEXT,
		last_contacted TEXT,
		frequency_days INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_id ON contacts(id);
	CREATE INDEX IF NOT EXISTS idx_contacts_active ON contacts(active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ListAll returns every active contact. Deactivated rows stay out of the
// result on purpose: they are invisible to both queries and reconciliation,
// which keeps repeated runs over unchanged source data a no-op.
func (s *Store) ListAll(ctx context.Context) ([]contact.Contact, error) {
	query := `
		SELECT id, phone, name, birthday, year_known, year_met, email,
		       locations, affiliations, last_contacted, frequency_days, active
		FROM contacts
		WHERE active = TRUE
		ORDER BY name, phone
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrListLocal, err)
	}
	defer rows.Close()

	var contacts []contact.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Upsert inserts or updates a contact keyed by phone number. On conflict the
// id column is deliberately absent from the SET list: the surrogate assigned
// at first insert is preserved.
func (s *Store) Upsert(ctx context.Context, c contact.Contact) error {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO contacts
		(id, phone, name, birthday, year_known, year_met, email, locations,
		 affiliations, last_contacted, frequency_days, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			birthday = excluded.birthday,
			year_known = excluded.year_known,
			year_met = excluded.year_met,
			email = excluded.email,
			locations = excluded.locations,
			affiliations = excluded.affiliations,
			last_contacted = excluded.last_contacted,
			frequency_days = excluded.frequency_days,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		id,
		c.Phone,
		c.Name,
		nullTime(c.Birthday, config.DateFormatFullDash),
		c.YearKnown,
		c.YearMet,
		nullString(c.Email),
		nullString(joinTags(c.Locations)),
		nullString(joinTags(c.Affiliations)),
		nullTime(c.LastContacted, time.RFC3339),
		c.FrequencyDays,
		c.Active,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact %s: %w", c.Phone, err)
	}
	return nil
}

// DeleteByPhone removes a contact, or deactivates it when the store runs in
// its default soft-delete mode.
func (s *Store) DeleteByPhone(ctx context.Context, phone string) error {
	var err error
	if s.hardDelete {
		_, err = s.db.ExecContext(ctx, "DELETE FROM contacts WHERE phone = ?", phone)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE contacts SET active = FALSE, updated_at = ? WHERE phone = ?",
			time.Now().UTC().Format(time.RFC3339), phone)
	}
	if err != nil {
		return fmt.Errorf("failed to delete contact %s: %w", phone, err)
	}
	return nil
}

// GetByPhone retrieves a single contact regardless of liveness. Returns nil
// when no row matches.
func (s *Store) GetByPhone(ctx context.Context, phone string) (*contact.Contact, error) {
	query := `
		SELECT id, phone, name, birthday, year_known, year_met, email,
		       locations, affiliations, last_contacted, frequency_days, active
		FROM contacts
		WHERE phone = ?
	`

	rows, err := s.db.QueryContext(ctx, query, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanContact(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanContact(rows *sql.Rows) (contact.Contact, error) {
	var (
		c             contact.Contact
		birthday      sql.NullString
		email         sql.NullString
		locations     sql.NullString
		affiliations  sql.NullString
		lastContacted sql.NullString
	)

	err := rows.Scan(
		&c.ID, &c.Phone, &c.Name, &birthday, &c.YearKnown, &c.YearMet,
		&email, &locations, &affiliations, &lastContacted,
		&c.FrequencyDays, &c.Active,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan contact: %w", err)
	}

	if birthday.Valid && birthday.String != "" {
		t, err := time.Parse(config.DateFormatFullDash, birthday.String)
		if err != nil {
			return c, fmt.Errorf("%s: %w", config.ErrDateParse, err)
		}
		c.Birthday = t
	}
	c.Email = email.String
	c.Locations = splitTags(locations.String)
	c.Affiliations = splitTags(affiliations.String)
	if lastContacted.Valid && lastContacted.String != "" {
		t, _ := time.Parse(time.RFC3339, lastContacted.String)
		c.LastContacted = t
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time, layout string) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(layout), Valid: true}
}

const tagSeparator = "\x1f"

func joinTags(tags []string) string {
	return strings.Join(tags, tagSeparator)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}
