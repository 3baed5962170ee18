package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresWriter mirrors the merged deal ledger into PostgreSQL. The CSV
// ledger stays the source of truth; this is a queryable copy.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS deals (
			url              TEXT PRIMARY KEY,
			deal_score       NUMERIC(6,2),
			cost_per_km      NUMERIC(10,4),
			avg_annual_tco   NUMERIC(12,2),
			make             VARCHAR(50)  NOT NULL DEFAULT '',
			model            TEXT         NOT NULL DEFAULT '',
			year             INT,
			price            NUMERIC(12,2),
			mileage          BIGINT,
			composite_score  NUMERIC(6,2),
			scraped_date     DATE,
			error            TEXT         NOT NULL DEFAULT '',
			updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_deals_score ON deals(deal_score);
		CREATE INDEX IF NOT EXISTS idx_deals_make_model ON deals(make, model);
	`)
	return err
}

// Write upserts the full merged ledger, keyed by url.
func (pw *PostgresWriter) Write(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.upsertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) upsertBatch(batch []Record) error {
	const cols = 12
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, rec := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		valueArgs = append(valueArgs,
			rec.URL(),
			nullFloat(rec, "deal_score"),
			nullFloat(rec, "tco_cost_per_km"),
			nullFloat(rec, "avg_annual_tco"),
			rec["make"],
			rec["model"],
			nullInt(rec, "year"),
			nullFloat(rec, "price"),
			nullInt(rec, "mileage"),
			nullFloat(rec, "composite_score"),
			nullDate(rec),
			rec["error"],
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO deals (url, deal_score, cost_per_km, avg_annual_tco,
		                   make, model, year, price, mileage, composite_score,
		                   scraped_date, error)
		VALUES %s
		ON CONFLICT (url) DO UPDATE SET
			deal_score      = EXCLUDED.deal_score,
			cost_per_km     = EXCLUDED.cost_per_km,
			avg_annual_tco  = EXCLUDED.avg_annual_tco,
			make            = EXCLUDED.make,
			model           = EXCLUDED.model,
			year            = EXCLUDED.year,
			price           = EXCLUDED.price,
			mileage         = EXCLUDED.mileage,
			composite_score = EXCLUDED.composite_score,
			scraped_date    = EXCLUDED.scraped_date,
			error           = EXCLUDED.error,
			updated_at      = NOW()
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	if err != nil {
		return fmt.Errorf("postgres: upsert batch: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func nullFloat(rec Record, col string) interface{} {
	if f, ok := rec.Float(col); ok {
		return f
	}
	return nil
}

func nullInt(rec Record, col string) interface{} {
	if n, err := strconv.Atoi(strings.TrimSpace(rec[col])); err == nil {
		return n
	}
	if f, ok := rec.Float(col); ok {
		return int64(f)
	}
	return nil
}

func nullDate(rec Record) interface{} {
	if t, ok := rec.ScrapedDate(); ok {
		return t
	}
	return nil
}
