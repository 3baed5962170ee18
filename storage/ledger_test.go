package storage

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"car-deal-finder/models"
	"car-deal-finder/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger("error") }

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"42.5", 42.5, true},
		{"$1,234.56", 1234.56, true},
		{"  $900.00 ", 900, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"NaN", 0, false},
		{"inf", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseNumber(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseNumber(%q) = (%v, %v); want (%v, %v)",
				tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRecordScrapedDateLayouts(t *testing.T) {
	tests := []struct {
		raw    string
		wantOK bool
	}{
		{"2026-08-28", true},
		{"2026-08-28 14:30:00", true},
		{"2026-08-28T14:30:00Z", true},
		{"28/08/2026", false},
		{"yesterday", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := Record{"scraped_date": tt.raw}.ScrapedDate()
		if ok != tt.wantOK {
			t.Errorf("ScrapedDate(%q) ok = %v; want %v", tt.raw, ok, tt.wantOK)
		}
	}
}

func TestFlattenProcessedValuedRow(t *testing.T) {
	qir := 12.5
	p := &models.ProcessedListing{
		Listing: models.Listing{
			URL: "https://example.com/1", Make: "toyota", Model: "corolla",
			Year: 2018, Price: 15000, Mileage: 80000,
		},
		ID:             "toyota_corolla_2018_15000_0",
		CompositeScore: 85,
		ScrapedDate:    time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		AvgAnnualTCO:   8817.73,
		EstResale:      8857.35,
		DealScore:      62.41,
		TCO: &models.TCOBreakdown{
			PurchaseTax:  1950,
			CostPerKm:    0.5878,
			HorizonYears: 5,
			QIRRate:      &qir,
		},
	}

	r := FlattenProcessed(p)
	if r.URL() != "https://example.com/1" {
		t.Errorf("url = %q", r.URL())
	}
	if r["scraped_date"] != "2026-08-28" {
		t.Errorf("scraped_date = %q; want date-only format", r["scraped_date"])
	}
	if score, ok := r.DealScore(); !ok || score != 62.41 {
		t.Errorf("deal_score = (%v, %v); want 62.41", score, ok)
	}
	if r["tco_purchase_tax"] != "1950" {
		t.Errorf("tco_purchase_tax = %q", r["tco_purchase_tax"])
	}
	if r["tco_calculation_years"] != "5" {
		t.Errorf("tco_calculation_years = %q", r["tco_calculation_years"])
	}
	if r["tco_reliability_qir"] != "12.5" {
		t.Errorf("tco_reliability_qir = %q", r["tco_reliability_qir"])
	}
	if _, ok := r["tco_reliability_defect_rate"]; ok {
		t.Error("nil defect rate should not emit a column")
	}
	if _, ok := r["error"]; ok {
		t.Error("valued row should not carry an error column")
	}
}

func TestFlattenProcessedErrorRow(t *testing.T) {
	p := &models.ProcessedListing{
		Listing:     models.Listing{URL: "https://example.com/2", Make: "toyota", Model: "corolla"},
		ID:          "toyota_corolla_0_0_1",
		ScrapedDate: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		Err:         "missing or invalid year/price",
		DealScore:   math.NaN(),
	}

	r := FlattenProcessed(p)
	if r["error"] != "missing or invalid year/price" {
		t.Errorf("error = %q", r["error"])
	}
	if r["deal_score"] != "" {
		t.Errorf("deal_score = %q; want empty for NaN", r["deal_score"])
	}
	if _, ok := r.DealScore(); ok {
		t.Error("error row deal score should not parse")
	}
	if _, ok := r["avg_annual_tco"]; ok {
		t.Error("error row should not carry TCO columns")
	}
}

func TestLedgerLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	l := NewLedger(filepath.Join(dir, "absent.csv"), newTestLogger())
	if rows := l.Load(); rows != nil {
		t.Errorf("missing file loaded %d rows; want none", len(rows))
	}

	bad := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(bad, []byte("url,price\n\"unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	l = NewLedger(bad, newTestLogger())
	if rows := l.Load(); rows != nil {
		t.Errorf("corrupt file loaded %d rows; want none", len(rows))
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	l := NewLedger(path, newTestLogger())

	records := []Record{
		{"url": "u1", "deal_score": "70", "price": "15000", "scraped_date": "2026-08-28"},
		{"url": "u2", "deal_score": "55", "price": "9000", "scraped_date": "2026-08-27",
			"legacy_note": "from an older run"},
	}

	if err := l.Persist(records); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded := l.Load()
	if len(loaded) != 2 {
		t.Fatalf("loaded %d rows; want 2", len(loaded))
	}
	if loaded[0].URL() != "u1" || loaded[1].URL() != "u2" {
		t.Errorf("urls = %s, %s", loaded[0].URL(), loaded[1].URL())
	}
	if loaded[0]["price"] != "$15000.00" {
		t.Errorf("price = %q; want currency formatting on write", loaded[0]["price"])
	}
	if loaded[1]["legacy_note"] != "from an older run" {
		t.Errorf("legacy column lost: %q", loaded[1]["legacy_note"])
	}

	// Writing the loaded rows again must be byte-identical: formatting is
	// stripped before being reapplied.
	if err := l.Persist(loaded); err != nil {
		t.Fatalf("second Persist: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	again := l.Load()
	if err := l.Persist(again); err != nil {
		t.Fatalf("third Persist: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("repeated persist of the same rows changed the file")
	}
}

func TestLedgerLoadStripsHeaderBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	data := "\uFEFF" + "url,deal_score\nu1,70\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := NewLedger(path, newTestLogger()).Load()
	if len(loaded) != 1 {
		t.Fatalf("loaded %d rows; want 1", len(loaded))
	}
	if loaded[0].URL() != "u1" {
		t.Errorf("url = %q; want u1 (BOM should not corrupt the url column)", loaded[0].URL())
	}
}

func TestLedgerColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	l := NewLedger(path, newTestLogger())

	records := []Record{
		{"url": "u1", "deal_score": "70", "zebra_extra": "x", "make": "toyota"},
	}
	if err := l.Persist(records); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if header != "url,deal_score,make,zebra_extra" {
		t.Errorf("header = %q; want canonical columns first, extras last", header)
	}
}

func TestFormatCellSkipsNonMonetaryAndUnparseable(t *testing.T) {
	tests := []struct {
		col, val, want string
	}{
		{"price", "15000", "$15000.00"},
		{"price", "$15,000.00", "$15000.00"},
		{"price", "N/A", "N/A"},
		{"deal_score", "70", "70"},
		{"tco_purchase_tax", "1950", "$1950.00"},
		{"tco_cost_per_km", "0.59", "0.59"},
		{"tco_calculation_years", "5", "5"},
		{"tco_fuel_consumption_l_100km", "9", "9"},
		{"url", "https://x", "https://x"},
	}

	for _, tt := range tests {
		if got := formatCell(tt.col, tt.val); got != tt.want {
			t.Errorf("formatCell(%s, %q) = %q; want %q", tt.col, tt.val, got, tt.want)
		}
	}
}
