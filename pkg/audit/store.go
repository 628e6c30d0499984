package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

const saveTimeout = 5 * time.Second

const insertRecord = `INSERT INTO messages (facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Store writes audit records into the messages table
type Store struct {
	db       *sql.DB
	hostname string
	procid   string
	now      func() time.Time
}

// record is one row of the messages table
type record struct {
	facility  int
	severity  int
	timestamp time.Time
	msgid     string
	sdata     []byte
	message   string
}

// OpenStore connects to the audit database at dbURL
func OpenStore(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing connection
func NewStore(db *sql.DB) *Store {
	hostname, _ := os.Hostname()
	return &Store{
		db:       db,
		hostname: hostname,
		procid:   strconv.Itoa(os.Getpid()),
		now:      time.Now,
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) newRecord(event Event) (record, error) {
	sdata, err := json.Marshal(event.StructuredData())
	if err != nil {
		return record{}, fmt.Errorf("failed to encode structured data: %w", err)
	}
	return record{
		facility:  event.Facility(),
		severity:  int(event.Severity()),
		timestamp: s.now().UTC(),
		msgid:     event.MessageID(),
		sdata:     sdata,
		message:   event.Message(),
	}, nil
}

// Save inserts event. A nil Store saves nothing.
func (s *Store) Save(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}

	r, err := s.newRecord(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, insertRecord,
		r.facility, r.severity, r.timestamp,
		s.hostname, appName, s.procid,
		r.msgid, r.sdata, r.message,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s audit event: %w", r.msgid, err)
	}
	return nil
}
