// Package store persists per-registration scratch records in SQLite, one
// row per registration id.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/regpay/bridge/internal/domain"
)

// Store holds in-flight registration metadata used to correlate an
// asynchronous payment notification with its originating session.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registration database at the given path and
// ensures the schema exists. Pass ":memory:" for an in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Each pooled connection to :memory: would get its own database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS registrations (
		reg_id         TEXT PRIMARY KEY,
		customer_name  TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		city           TEXT NOT NULL DEFAULT '',
		address        TEXT NOT NULL DEFAULT '',
		family_id      TEXT NOT NULL DEFAULT '',
		person_id      TEXT NOT NULL DEFAULT '',
		paid_amount    REAL NOT NULL DEFAULT 0,
		receipt_url    TEXT NOT NULL DEFAULT '',
		updated_at     DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put persists the full record under its registration id, overwriting any
// prior record. Last writer wins; the reconciliation path is the only
// writer of the amount/receipt fields.
func (s *Store) Put(rec domain.RegistrationContext) error {
	if rec.RegID == "" {
		return &domain.StorageError{Op: "put", Err: errors.New("empty registration id")}
	}
	_, err := s.db.Exec(`INSERT INTO registrations
		(reg_id, customer_name, customer_email, customer_phone, city, address,
		 family_id, person_id, paid_amount, receipt_url, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(reg_id) DO UPDATE SET
			customer_name=excluded.customer_name,
			customer_email=excluded.customer_email,
			customer_phone=excluded.customer_phone,
			city=excluded.city,
			address=excluded.address,
			family_id=excluded.family_id,
			person_id=excluded.person_id,
			paid_amount=excluded.paid_amount,
			receipt_url=excluded.receipt_url,
			updated_at=excluded.updated_at`,
		rec.RegID, rec.CustomerName, rec.CustomerEmail, rec.CustomerPhone,
		rec.City, rec.Address, rec.FamilyID, rec.PersonID,
		rec.PaidAmount, rec.ReceiptURL, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &domain.StorageError{Op: "put", Err: err}
	}
	return nil
}

// Get returns the record under the given id. A key that has never been
// written yields a zero record and no error: "no data yet" is a normal
// state, since the record may be created by a concurrent request that has
// not completed. Read failures come back as StorageError; callers log them
// and treat the result as empty.
func (s *Store) Get(regID string) (domain.RegistrationContext, error) {
	var rec domain.RegistrationContext
	err := s.db.QueryRow(`SELECT reg_id, customer_name, customer_email,
		customer_phone, city, address, family_id, person_id, paid_amount, receipt_url
		FROM registrations WHERE reg_id = ?`, regID).Scan(
		&rec.RegID, &rec.CustomerName, &rec.CustomerEmail, &rec.CustomerPhone,
		&rec.City, &rec.Address, &rec.FamilyID, &rec.PersonID,
		&rec.PaidAmount, &rec.ReceiptURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegistrationContext{}, nil
	}
	if err != nil {
		return domain.RegistrationContext{}, &domain.StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

// MarkReconciled fills in the paid amount and receipt URL for a
// registration, but only if no receipt has been recorded yet. It reports
// whether this call won the marker: a false result means the registration
// was already reconciled (duplicate webhook delivery) and no overwrite
// happened. The guard is a single UPDATE, so two concurrent deliveries
// cannot both win.
func (s *Store) MarkReconciled(regID string, amount float64, receiptURL string) (bool, error) {
	res, err := s.db.Exec(`UPDATE registrations
		SET paid_amount = ?, receipt_url = ?, updated_at = ?
		WHERE reg_id = ? AND receipt_url = ''`,
		amount, receiptURL, time.Now().UTC().Format(time.RFC3339), regID)
	if err != nil {
		return false, &domain.StorageError{Op: "mark-reconciled", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "mark-reconciled", Err: err}
	}
	return n > 0, nil
}
