package storage

// LedgerStore is the interface the primary ledger backend must satisfy.
type LedgerStore interface {
	Load() []Record
	Persist(records []Record) error
}

// LedgerMirror is the interface for secondary, best-effort copies of the
// merged ledger (e.g. the Postgres mirror).
type LedgerMirror interface {
	Write(records []Record) error
	Close() error
}
