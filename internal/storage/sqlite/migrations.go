package sqlite

import "database/sql"

// schema sets up the ledger tables. It runs on every New, so statements must
// be idempotent.
//
// seq columns record creation order for listings. Transaction amounts are
// nullable because SQLite stores NaN as NULL, and unvalidated amounts are
// accepted until a payment is executed.
const schema = `
CREATE TABLE IF NOT EXISTS invoices (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    amount REAL NOT NULL,
    outstanding REAL NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    payee TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    executed_at INTEGER,
    failure_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS payment_transactions (
    payment_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    invoice_id TEXT NOT NULL,
    amount REAL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (payment_id, position),
    FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
