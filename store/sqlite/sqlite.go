/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Durable persistence for users, their embedded transaction sequences, and
  the service singleton. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  services:     The authorized service singleton
  users:        One row per ledger account, balances as decimal text
  transactions: Owned by users; append-only except status/updated_at

ORDERING:
  AUTOINCREMENT seq columns preserve insertion order for both users and
  transactions, which is the iteration order ListUsers hands back.

MUTABILITY CONTRACT:
  PutUser upserts the user row and its transactions. A transaction row is
  inserted once; subsequent writes may only touch status and updated_at.
  Nothing is ever deleted.

CONCURRENCY:
  Opened in WAL mode. A store-level mutex keeps WithTx bodies serialized;
  the engine adds its own serialization on top.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/points-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	q  querier // db or an open transaction
	mu sync.Mutex
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The sqlite3 driver is not safe for concurrent writes on one
	// connection; the store mutex assumes a single connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Authorized service singleton
	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	-- Ledger accounts; balances stored as decimal text (never floats)
	CREATE TABLE IF NOT EXISTS users (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		total_points TEXT NOT NULL,
		available_points TEXT NOT NULL,
		total_redeemed TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions owned by users; append-only except status/updated_at
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		address TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id);

	-- Pending-redemption worklist scan (hot path for operators)
	CREATE INDEX IF NOT EXISTS idx_transactions_status_type
		ON transactions(status, tx_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SERVICES
// =============================================================================

func (s *Store) GetService(ctx context.Context, id ledger.Principal) (*ledger.Service, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, created_at FROM services WHERE id = ?`, string(id))

	var svcID, createdAt string
	if err := row.Scan(&svcID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &ledger.Service{ID: ledger.Principal(svcID), CreatedAt: created}, nil
}

func (s *Store) ServiceCount(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&n)
	return n, err
}

func (s *Store) PutService(ctx context.Context, svc ledger.Service) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO services (id, created_at) VALUES (?, ?)`,
		string(svc.ID), formatTime(svc.CreatedAt))
	return err
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id ledger.Principal) (*ledger.User, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, total_points, available_points, total_redeemed, created_at, updated_at
		FROM users WHERE id = ?`, string(id))

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	txs, err := s.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Transactions = txs
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u ledger.User) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, total_points, available_points, total_redeemed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_points = excluded.total_points,
			available_points = excluded.available_points,
			total_redeemed = excluded.total_redeemed,
			updated_at = excluded.updated_at`,
		string(u.ID), u.TotalPoints.String(), u.AvailablePoints.String(),
		u.TotalRedeemed.String(), formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return err
	}

	// Transactions are append-only: new rows are inserted, existing rows
	// may only change status and updated_at.
	for _, tx := range u.Transactions {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, amount, address, tx_type, status, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				updated_at = excluded.updated_at`,
			tx.ID, string(tx.UserID), tx.Amount.String(), tx.Address,
			string(tx.Type), string(tx.Status), tx.Description,
			formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.User, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, total_points, available_points, total_redeemed, created_at, updated_at
		FROM users ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.User
	index := make(map[ledger.Principal]int)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		index[u.ID] = len(users)
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.q.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.amount, t.address, t.tx_type, t.status, t.description, t.created_at, t.updated_at
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		ORDER BY u.seq, t.seq`)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()

	for txRows.Next() {
		tx, err := scanTransaction(txRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[tx.UserID]; ok {
			users[i].Transactions = append(users[i].Transactions, *tx)
		}
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].Transactions == nil {
			users[i].Transactions = []ledger.Transaction{}
		}
	}
	return users, nil
}

func (s *Store) loadTransactions(ctx context.Context, userID ledger.Principal) ([]ledger.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, amount, address, tx_type, status, description, created_at, updated_at
		FROM transactions WHERE user_id = ? ORDER BY seq`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns an error, all writes are rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	view := &Store{db: s.db, q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*ledger.User, error) {
	var id, total, available, redeemed, createdAt, updatedAt string
	if err := row.Scan(&id, &total, &available, &redeemed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	u := ledger.User{ID: ledger.Principal(id), Transactions: []ledger.Transaction{}}
	var err error
	if u.TotalPoints, err = ledger.ParsePoints(total); err != nil {
		return nil, err
	}
	if u.AvailablePoints, err = ledger.ParsePoints(available); err != nil {
		return nil, err
	}
	if u.TotalRedeemed, err = ledger.ParsePoints(redeemed); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanTransaction(row scanner) (*ledger.Transaction, error) {
	var id, userID, amount, address, txType, status, description, createdAt, updatedAt string
	if err := row.Scan(&id, &userID, &amount, &address, &txType, &status, &description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	tx := ledger.Transaction{
		ID:          id,
		UserID:      ledger.Principal(userID),
		Address:     address,
		Type:        ledger.TransactionType(txType),
		Status:      ledger.TransactionStatus(status),
		Description: description,
	}
	var err error
	if tx.Amount, err = ledger.ParsePoints(amount); err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tx.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &tx, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
