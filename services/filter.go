package services

import (
	"strings"

	"car-deal-finder/models"
	"car-deal-finder/refdata"
	"car-deal-finder/utils"
)

// Match pairs a listing that passed every gate with the allow-list entry it
// matched, carrying the composite score forward to the valuation engine.
type Match struct {
	Listing  *models.Listing
	Approved models.ApprovedVehicle
}

// FilterStats counts dropped listings per gate for the run report.
type FilterStats struct {
	MissingFields int
	OverCeiling   int
	NotApproved   int
}

// Filter applies the cheap gates ahead of valuation: required fields, the
// price ceiling, and approved-vehicle membership.
type Filter struct {
	ceiling float64
	store   *refdata.Store
	logger  *utils.Logger
}

// NewFilter creates a Filter with the given price ceiling.
func NewFilter(ceiling float64, store *refdata.Store, logger *utils.Logger) *Filter {
	return &Filter{ceiling: ceiling, store: store, logger: logger}
}

// Apply runs all listings through the gates and returns the survivors paired
// with their matched allow-list entries.
func (f *Filter) Apply(listings []*models.Listing) ([]Match, FilterStats) {
	var stats FilterStats
	matches := make([]Match, 0, len(listings))

	for _, l := range listings {
		if strings.TrimSpace(l.URL) == "" {
			// No URL means no ledger identity; not even worth counting.
			continue
		}
		if l.Make == "" || l.Model == "" || l.Mileage < 0 {
			f.logger.Debug("[filter] Dropping listing with missing fields: %s", l.Title)
			stats.MissingFields++
			continue
		}

		// Strict less-than: a car at exactly the ceiling is out.
		if l.Price >= f.ceiling {
			f.logger.Debug("[filter] Dropping %s %s — price %.2f at/over ceiling %.2f",
				l.Make, l.Model, l.Price, f.ceiling)
			stats.OverCeiling++
			continue
		}

		approved, ok := f.matchApproved(l)
		if !ok {
			f.logger.Debug("[filter] Dropping %s %s %d — not on the approved list",
				l.Make, l.Model, l.Year)
			stats.NotApproved++
			continue
		}

		matches = append(matches, Match{Listing: l, Approved: approved})
	}

	f.logger.Info("[filter] %d → %d listings (missing fields: %d, over ceiling: %d, not approved: %d)",
		len(listings), len(matches), stats.MissingFields, stats.OverCeiling, stats.NotApproved)
	return matches, stats
}

// matchApproved finds the allow-list entry for a listing. The scraped model
// only needs to start with the approved model ("civic si" matches approved
// "civic", never the other way around), so trims don't fall through the net.
func (f *Filter) matchApproved(l *models.Listing) (models.ApprovedVehicle, bool) {
	make := refdata.NormalizeMake(l.Make)
	model := refdata.NormalizeModel(l.Model)

	for _, av := range f.store.Approved() {
		if make == av.Make && l.Year == av.Year && strings.HasPrefix(model, av.Model) {
			return av, true
		}
	}
	return models.ApprovedVehicle{}, false
}
