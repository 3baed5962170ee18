package services

import (
	"testing"
	"time"

	"car-deal-finder/storage"
)

func mergeCfg(now time.Time) MergeConfig {
	return MergeConfig{Now: now, StalenessWindow: 7 * 24 * time.Hour}
}

func rec(url, date, score string) storage.Record {
	r := storage.Record{"url": url}
	if date != "" {
		r["scraped_date"] = date
	}
	if score != "" {
		r["deal_score"] = score
	}
	return r
}

func TestMergeEvictsStaleRows(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "2026-08-27", "50"), // fresh
		rec("u2", "2026-08-10", "60"), // stale
	}

	merged := MergeLedger(existing, nil, mergeCfg(now), newTestLogger())
	if len(merged) != 1 {
		t.Fatalf("rows = %d; want 1 after evicting the stale row", len(merged))
	}
	if merged[0].URL() != "u1" {
		t.Errorf("kept %s; want u1", merged[0].URL())
	}
}

func TestMergeStaleRowSurvivesWhenReobserved(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "2026-08-01", "50"),
	}
	fresh := []storage.Record{
		rec("u1", "2026-08-28", "55"),
	}

	merged := MergeLedger(existing, fresh, mergeCfg(now), newTestLogger())
	if len(merged) != 1 {
		t.Fatalf("rows = %d; want 1", len(merged))
	}
	if merged[0]["deal_score"] != "55" {
		t.Errorf("deal_score = %s; want the re-observed row's 55", merged[0]["deal_score"])
	}
}

func TestMergeUnparseableDateIsKept(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "not a date", "50"),
		rec("u2", "", "40"),
	}

	merged := MergeLedger(existing, nil, mergeCfg(now), newTestLogger())
	if len(merged) != 2 {
		t.Fatalf("rows = %d; want 2 (bad dates never evict)", len(merged))
	}
}

func TestMergeNewestWinsPerURL(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "2026-08-26", "50"),
	}
	fresh := []storage.Record{
		rec("u1", "2026-08-28", "70"),
		rec("u1", "2026-08-27", "60"),
	}

	merged := MergeLedger(existing, fresh, mergeCfg(now), newTestLogger())
	if len(merged) != 1 {
		t.Fatalf("rows = %d; want 1 per URL", len(merged))
	}
	if merged[0]["deal_score"] != "70" {
		t.Errorf("deal_score = %s; want 70 from the newest row", merged[0]["deal_score"])
	}
}

func TestMergeSortsByScoreDescending(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "2026-08-28", "42.5"),
		rec("u2", "2026-08-28", "91"),
		rec("u3", "2026-08-28", ""), // no score sorts last
		rec("u4", "2026-08-28", "60"),
	}

	merged := MergeLedger(existing, nil, mergeCfg(now), newTestLogger())
	want := []string{"u2", "u4", "u1", "u3"}
	if len(merged) != len(want) {
		t.Fatalf("rows = %d; want %d", len(merged), len(want))
	}
	for i, url := range want {
		if merged[i].URL() != url {
			t.Errorf("position %d = %s; want %s", i, merged[i].URL(), url)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u1", "2026-08-27", "50"),
		rec("u2", "garbage", "30"),
		rec("u3", "2026-08-25", "80"),
	}

	once := MergeLedger(existing, nil, mergeCfg(now), newTestLogger())
	twice := MergeLedger(once, nil, mergeCfg(now), newTestLogger())

	if len(once) != len(twice) {
		t.Fatalf("row count changed across merges: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].URL() != twice[i].URL() {
			t.Errorf("order changed at %d: %s vs %s", i, once[i].URL(), twice[i].URL())
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	existing := []storage.Record{
		rec("u2", "2026-08-28", "10"),
		rec("u1", "2026-08-28", "90"),
	}

	MergeLedger(existing, nil, mergeCfg(now), newTestLogger())
	if existing[0].URL() != "u2" || existing[1].URL() != "u1" {
		t.Error("input slice order was mutated")
	}
}
