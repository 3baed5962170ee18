package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"car-deal-finder/utils"
)

// canonicalColumns is the preferred leading column order: identifying and
// ranking columns first, then the descriptive ones, then the TCO breakdown.
var canonicalColumns = []string{
	"id", "url", "deal_score", "tco_cost_per_km", "avg_annual_tco",
	"make", "model", "year", "price", "mileage",
	"composite_score", "estimated_resale_after_period", "scraped_date", "error",
	"tco_purchase_tax", "tco_total_depreciation", "tco_avg_annual_depreciation",
	"tco_total_fuel_cost", "tco_avg_annual_fuel_cost", "tco_fuel_price_per_l",
	"tco_fuel_consumption_l_100km", "tco_total_maintenance",
	"tco_avg_annual_maintenance", "tco_total_insurance",
	"tco_avg_annual_insurance", "tco_total_over_period",
	"tco_calculation_years", "tco_remaining_lifespan_km",
	"tco_reliability_qir", "tco_reliability_defect_rate",
}

// monetaryColumns are always currency-formatted on write; tco_* columns are
// formatted too unless excluded by keyword below.
var monetaryColumns = map[string]struct{}{
	"price":                         {},
	"avg_annual_tco":                {},
	"estimated_resale_after_period": {},
}

var nonMonetaryKeywords = []string{"rate", "years", "count", "l_100km", "lifespan", "per_km"}

// Ledger reads and writes the persisted deal ledger CSV. A missing, empty or
// corrupt file loads as an empty ledger; writes go through a temp file and
// rename so a crash mid-write cannot clobber the previous ledger.
type Ledger struct {
	path   string
	logger *utils.Logger
}

// NewLedger creates a Ledger for the given CSV path.
func NewLedger(path string, logger *utils.Logger) *Ledger {
	return &Ledger{path: path, logger: logger}
}

// Load reads the existing ledger. Any failure is logged and returns an empty
// ledger; keeping the run going matters more than the old file.
func (l *Ledger) Load() []Record {
	f, err := os.Open(l.path)
	if err != nil {
		l.logger.Info("[ledger] No existing ledger at %s — starting fresh", l.path)
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		l.logger.Warn("[ledger] Could not parse %s (%v) — starting fresh", l.path, err)
		return nil
	}
	if len(all) < 2 {
		l.logger.Info("[ledger] %s is empty — starting fresh", l.path)
		return nil
	}

	header := all[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	records := make([]Record, 0, len(all)-1)
	for _, row := range all[1:] {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		if rec.URL() == "" {
			continue
		}
		records = append(records, rec)
	}

	l.logger.Info("[ledger] Loaded %d existing rows from %s", len(records), l.path)
	return records
}

// Persist writes the merged ledger atomically. Columns are the canonical set
// plus whatever extra columns older rows carry; monetary cells are formatted
// as $X.XX.
func (l *Ledger) Persist(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("ledger: create output dir: %w", err)
	}

	columns := l.columns(records)

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("ledger: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.Write(columns); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: write header: %w", err)
	}

	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatCell(col, rec[col])
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("ledger: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("ledger: replace %q: %w", l.path, err)
	}
	return nil
}

// columns returns the output column order: canonical columns that appear in
// at least one record, followed by any leftover columns alphabetically.
func (l *Ledger) columns(records []Record) []string {
	present := make(map[string]struct{})
	for _, rec := range records {
		for col := range rec {
			present[col] = struct{}{}
		}
	}

	columns := make([]string, 0, len(present))
	for _, col := range canonicalColumns {
		if _, ok := present[col]; ok {
			columns = append(columns, col)
			delete(present, col)
		}
	}

	extras := make([]string, 0, len(present))
	for col := range present {
		extras = append(extras, col)
	}
	sort.Strings(extras)
	return append(columns, extras...)
}

// formatCell currency-formats monetary columns. Cells that do not parse as a
// number (after stripping any previous formatting) pass through unchanged.
func formatCell(col, val string) string {
	if val == "" || !isMonetary(col) {
		return val
	}
	f, ok := ParseNumber(val)
	if !ok {
		return val
	}
	return fmt.Sprintf("$%.2f", f)
}

func isMonetary(col string) bool {
	if _, ok := monetaryColumns[col]; ok {
		return true
	}
	if !strings.HasPrefix(col, "tco_") {
		return false
	}
	for _, kw := range nonMonetaryKeywords {
		if strings.Contains(col, kw) {
			return false
		}
	}
	return true
}
