package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"car-deal-finder/models"
	"car-deal-finder/utils"
)

// Reporter builds and prints the end-of-run summary.
type Reporter struct {
	logger *utils.Logger
}

func NewReporter(logger *utils.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Generate assembles the run report from the raw input count, filter stats,
// the valued batch and the final ledger size.
func (r *Reporter) Generate(rawCount int, stats FilterStats, processed []*models.ProcessedListing, ledgerRows int) *models.RunReport {
	report := &models.RunReport{
		RawListings:   rawCount,
		MissingFields: stats.MissingFields,
		OverCeiling:   stats.OverCeiling,
		NotApproved:   stats.NotApproved,
		LedgerRows:    ledgerRows,
	}

	var scored []*models.ProcessedListing
	var total float64
	for _, p := range processed {
		if p.Err != "" || math.IsNaN(p.DealScore) {
			report.Errored++
			continue
		}
		report.Valued++
		total += p.DealScore
		scored = append(scored, p)
	}

	if len(scored) > 0 {
		report.AvgScore = round2(total / float64(len(scored)))
		sort.Slice(scored, func(i, j int) bool {
			return scored[i].DealScore > scored[j].DealScore
		})
		report.BestScore = scored[0].DealScore
		if len(scored) > 5 {
			scored = scored[:5]
		}
		report.TopDeals = scored
	}

	return report
}

// Print renders the report to stdout.
func (r *Reporter) Print(rep *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  🚗 CAR DEAL FINDER — RUN SUMMARY\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Pipeline\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Raw listings in        : \033[1m%d\033[0m\n", rep.RawListings)
	fmt.Printf("  Missing fields         : %d\n", rep.MissingFields)
	fmt.Printf("  Over price ceiling     : %d\n", rep.OverCeiling)
	fmt.Printf("  Not on approved list   : %d\n", rep.NotApproved)
	fmt.Printf("  Valued                 : \033[1;32m%d\033[0m\n", rep.Valued)
	fmt.Printf("  Errored (kept, flagged): %d\n", rep.Errored)
	fmt.Printf("  Ledger rows after merge: \033[1m%d\033[0m\n", rep.LedgerRows)
	fmt.Println()

	fmt.Printf("\033[1;33m  Deal Scores\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if rep.Valued == 0 {
		fmt.Printf("  No listings scored this run\n")
	} else {
		fmt.Printf("  Best score    : \033[1;32m%.2f\033[0m\n", rep.BestScore)
		fmt.Printf("  Average score : %.2f\n", rep.AvgScore)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Top %d Best Deals\033[0m\n", len(rep.TopDeals))
	fmt.Printf("  %s\n", thin)
	if len(rep.TopDeals) == 0 {
		fmt.Printf("  Nothing to show\n")
	} else {
		for i, d := range rep.TopDeals {
			fmt.Printf("  \033[1m%d.\033[0m %d %s %s\n", i+1, d.Year, d.Make, d.Model)
			fmt.Printf("     Price: $%.2f | Mileage: %d km | Score: \033[1;32m%.2f\033[0m\n",
				d.Price, d.Mileage, d.DealScore)
			if d.TCO != nil {
				fmt.Printf("     Avg annual TCO: $%.2f | Cost/km: $%.3f\n",
					d.AvgAnnualTCO, d.TCO.CostPerKm)
			}
			fmt.Printf("     %s\n", truncate(d.URL, 70))
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
