package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/noviso123/Inovar-Refrigeracao-sub000/internal/model"
)

type Store struct {
	DB *sql.DB
}

// Open opens/initializes the SQLite database with WAL and foreign keys,
// then migrates the dispatcher-owned tables.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		// continue; non-fatal
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		// continue; non-fatal
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	// Session state never survives the process: a fresh process has no
	// transport connection yet, whatever the previous run left behind.
	// The connect event restores the row.
	if _, err := db.Exec(`UPDATE connection_status
		SET state='disconnected', pairing_artifact=NULL, updated_at=CURRENT_TIMESTAMP
		WHERE id=1`); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset status: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes underlying DB.
func (s *Store) Close() error { return s.DB.Close() }

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			destination TEXT NOT NULL,
			body TEXT NOT NULL,
			media_ref TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			error_detail TEXT,
			claimed_by TEXT,
			claimed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			sent_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox(status, created_at);`,
		`CREATE TABLE IF NOT EXISTS dispatch_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			min_delay_sec INTEGER NOT NULL DEFAULT 20,
			max_delay_sec INTEGER NOT NULL DEFAULT 75,
			window_start TEXT NOT NULL DEFAULT '08:00',
			window_end TEXT NOT NULL DEFAULT '21:00',
			enabled INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`INSERT OR IGNORE INTO dispatch_config (id) VALUES (1);`,
		`CREATE TABLE IF NOT EXISTS connection_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			state TEXT NOT NULL DEFAULT 'disconnected',
			pairing_artifact TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`INSERT OR IGNORE INTO connection_status (id) VALUES (1);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Enqueue inserts a pending outbox row and returns its id. The
// destination is stored as given; callers are expected to normalize it.
func (s *Store) Enqueue(destination, body, mediaRef string) (int64, error) {
	res, err := s.DB.Exec(`INSERT INTO outbox (destination, body, media_ref, status)
		VALUES (?, ?, NULLIF(?, ''), 'pending')`,
		destination, body, mediaRef)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ClaimNext atomically transitions the oldest pending row to claimed
// and returns it, stamping the claimant. Returns nil when no pending
// row exists. The single-statement update means two dispatcher
// processes can never claim the same row: SQLite serializes writers,
// and the status guard makes the second update match nothing.
func (s *Store) ClaimNext(owner string) (*model.QueuedMessage, error) {
	var m model.QueuedMessage
	err := s.DB.QueryRow(`
		UPDATE outbox
		SET status='claimed', claimed_by=?, claimed_at=CURRENT_TIMESTAMP
		WHERE id = (SELECT id FROM outbox WHERE status='pending' ORDER BY created_at, id LIMIT 1)
		  AND status='pending'
		RETURNING id, destination, body, COALESCE(media_ref,''), created_at
	`, owner).Scan(&m.ID, &m.Destination, &m.Body, &m.MediaRef, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.Status = model.MessageClaimed
	m.ClaimedBy = owner
	return &m, nil
}

// MarkSent records terminal success. Returns false when the row was
// already terminal (the write is skipped; callers log, never fail).
func (s *Store) MarkSent(id int64) (bool, error) {
	res, err := s.DB.Exec(`
		UPDATE outbox
		SET status='sent', sent_at=CURRENT_TIMESTAMP, error_detail=NULL
		WHERE id=? AND status NOT IN ('sent','failed')
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed records terminal failure with detail. Same idempotency
// contract as MarkSent.
func (s *Store) MarkFailed(id int64, detail string) (bool, error) {
	res, err := s.DB.Exec(`
		UPDATE outbox
		SET status='failed', error_detail=?
		WHERE id=? AND status NOT IN ('sent','failed')
	`, detail, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MessageStatus returns the current status of one row.
func (s *Store) MessageStatus(id int64) (string, error) {
	var st string
	err := s.DB.QueryRow(`SELECT status FROM outbox WHERE id=?`, id).Scan(&st)
	return st, err
}

// ListMessages returns rows newest-first, optionally filtered by status.
func (s *Store) ListMessages(status string, limit int) ([]model.QueuedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, destination, body, COALESCE(media_ref,''), status,
		COALESCE(error_detail,''), COALESCE(claimed_by,''), created_at, sent_at
		FROM outbox`
	args := []any{}
	if status != "" {
		q += ` WHERE status=?`
		args = append(args, status)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QueuedMessage
	for rows.Next() {
		var m model.QueuedMessage
		var sentAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Destination, &m.Body, &m.MediaRef, &m.Status,
			&m.ErrorDetail, &m.ClaimedBy, &m.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			t := sentAt.Time
			m.SentAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResetStaleClaims moves claimed rows older than the given age back to
// pending. Recovers rows stranded by a crash between claim and mark.
func (s *Store) ResetStaleClaims(olderThan time.Duration) (int64, error) {
	res, err := s.DB.Exec(`
		UPDATE outbox
		SET status='pending', claimed_by=NULL, claimed_at=NULL
		WHERE status='claimed' AND claimed_at < datetime('now', ?)
	`, fmt.Sprintf("-%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatsToday counts today's rows by outcome.
func (s *Store) StatsToday() (total, sent, failed int64, err error) {
	row := s.DB.QueryRow(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status='sent' THEN 1 ELSE 0 END), 0) AS sent,
			COALESCE(SUM(CASE WHEN status='failed' THEN 1 ELSE 0 END), 0) AS failed
		FROM outbox
		WHERE created_at >= datetime('now','start of day') AND created_at < datetime('now','start of day','+1 day')`)
	if err := row.Scan(&total, &sent, &failed); err != nil {
		return 0, 0, 0, err
	}
	return total, sent, failed, nil
}

// GetConfig reads the singleton dispatch config row.
func (s *Store) GetConfig() (model.DispatchConfig, error) {
	var c model.DispatchConfig
	var enabled int
	err := s.DB.QueryRow(`SELECT min_delay_sec, max_delay_sec, window_start, window_end, enabled, display_name, updated_at
		FROM dispatch_config WHERE id=1`).
		Scan(&c.MinDelaySec, &c.MaxDelaySec, &c.WindowStart, &c.WindowEnd, &enabled, &c.DisplayName, &c.UpdatedAt)
	if err != nil {
		return model.DispatchConfig{}, err
	}
	c.Enabled = enabled == 1
	return c, nil
}

// UpdateConfig overwrites the singleton dispatch config row.
func (s *Store) UpdateConfig(c model.DispatchConfig) error {
	_, err := s.DB.Exec(`UPDATE dispatch_config
		SET min_delay_sec=?, max_delay_sec=?, window_start=?, window_end=?, enabled=?, display_name=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=1`,
		c.MinDelaySec, c.MaxDelaySec, strings.TrimSpace(c.WindowStart), strings.TrimSpace(c.WindowEnd), btoi(c.Enabled), c.DisplayName)
	return err
}

// GetStatus reads the singleton connection status row.
func (s *Store) GetStatus() (model.ConnectionStatus, error) {
	var st model.ConnectionStatus
	err := s.DB.QueryRow(`SELECT state, COALESCE(pairing_artifact,''), updated_at FROM connection_status WHERE id=1`).
		Scan(&st.State, &st.PairingArtifact, &st.UpdatedAt)
	if err != nil {
		return model.ConnectionStatus{}, err
	}
	return st, nil
}

// UpdateStatus upserts the singleton connection status row. The upsert
// keeps this the single synchronization point between the connection
// watcher and the dispatch loop.
func (s *Store) UpdateStatus(state, pairingArtifact string) error {
	_, err := s.DB.Exec(`
		INSERT INTO connection_status (id, state, pairing_artifact, updated_at)
		VALUES (1, ?, NULLIF(?, ''), CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			pairing_artifact=excluded.pairing_artifact,
			updated_at=CURRENT_TIMESTAMP
	`, state, pairingArtifact)
	return err
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
