package services

import (
	"sort"
	"time"

	"car-deal-finder/storage"
	"car-deal-finder/utils"
)

// MergeConfig parameterizes one ledger merge.
type MergeConfig struct {
	Now             time.Time
	StalenessWindow time.Duration
}

// MergeLedger folds a batch of freshly valued rows into the existing ledger:
//
//  1. existing rows survive if they are still inside the staleness window,
//     were re-observed in this batch, or carry a date we cannot parse (a
//     malformed timestamp is never grounds for destroying data);
//  2. one row per URL, the latest scraped_date winning (on a tie the row
//     seen later in survivors-then-batch order wins, deterministically);
//  3. the result is sorted by deal score descending, rows without a
//     parseable score last.
//
// Inputs are not mutated; the returned slice is a fresh snapshot, so running
// the same merge twice yields the same ledger.
func MergeLedger(existing, fresh []storage.Record, cfg MergeConfig, logger *utils.Logger) []storage.Record {
	cutoff := cfg.Now.Add(-cfg.StalenessWindow)

	freshURLs := make(map[string]struct{}, len(fresh))
	for _, rec := range fresh {
		freshURLs[rec.URL()] = struct{}{}
	}

	evicted := 0
	combined := make([]storage.Record, 0, len(existing)+len(fresh))
	for _, rec := range existing {
		date, ok := rec.ScrapedDate()
		if ok && date.Before(cutoff) {
			if _, reobserved := freshURLs[rec.URL()]; !reobserved {
				evicted++
				continue
			}
		}
		combined = append(combined, rec)
	}
	combined = append(combined, fresh...)

	// De-duplicate by URL, newest scraped_date wins.
	order := make([]string, 0, len(combined))
	byURL := make(map[string]storage.Record, len(combined))
	for _, rec := range combined {
		url := rec.URL()
		current, seen := byURL[url]
		if !seen {
			order = append(order, url)
			byURL[url] = rec
			continue
		}
		curDate, _ := current.ScrapedDate()
		recDate, _ := rec.ScrapedDate()
		if !recDate.Before(curDate) {
			byURL[url] = rec
		}
	}

	merged := make([]storage.Record, 0, len(order))
	for _, url := range order {
		merged = append(merged, byURL[url])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		si, iok := merged[i].DealScore()
		sj, jok := merged[j].DealScore()
		if iok != jok {
			return iok
		}
		return si > sj
	})

	logger.Info("[merge] %d existing + %d new → %d rows (evicted %d stale, collapsed %d duplicates)",
		len(existing), len(fresh), len(merged), evicted, len(combined)-len(merged))
	return merged
}
