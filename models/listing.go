package models

import "time"

// Listing is a normalized used-car record handed to the core by a scraper or
// CSV parser. Numeric fields are zero when the source text could not be
// parsed; the valuation engine turns those into error-marked results instead
// of dropping them.
type Listing struct {
	URL      string
	Title    string
	Year     int
	Make     string
	Model    string
	Price    float64
	Mileage  int
	BodyType string
	Location string
	Source   string
}

// ApprovedVehicle is one row of the curated allow-list. Make and Model are
// normalized (lowercase, hyphens collapsed to spaces) at load time.
type ApprovedVehicle struct {
	Make           string
	Model          string
	Year           int
	CompositeScore float64
}

// TCOBreakdown is the per-listing total-cost-of-ownership estimate over the
// configured ownership horizon.
type TCOBreakdown struct {
	PurchaseTax           float64
	TotalDepreciation     float64
	AvgAnnualDepreciation float64
	EstimatedResale       float64
	TotalFuel             float64
	AvgAnnualFuel         float64
	FuelPricePerLitre     float64
	FuelL100Km            float64
	TotalMaintenance      float64
	AvgAnnualMaintenance  float64
	TotalInsurance        float64
	AvgAnnualInsurance    float64
	TotalOverPeriod       float64
	AvgAnnualTotal        float64
	CostPerKm             float64
	RemainingLifespanKm   float64
	HorizonYears          int

	// Legacy reliability chart figures; nil when no record is close enough.
	QIRRate    *float64
	DefectRate *float64
}

// ProcessedListing is a valued, scored listing ready for the ledger. Err is
// set (and TCO left nil, DealScore NaN) when the listing carried unparseable
// numeric fields; callers can tell "bad deal" apart from "could not compute".
type ProcessedListing struct {
	Listing

	ID             string
	CompositeScore float64
	ScrapedDate    time.Time
	TCO            *TCOBreakdown
	AvgAnnualTCO   float64
	EstResale      float64
	DealScore      float64
	Err            string
}

// RunReport summarizes one end-to-end run for the closing console report.
type RunReport struct {
	RawListings   int
	MissingFields int
	OverCeiling   int
	NotApproved   int
	Valued        int
	Errored       int
	LedgerRows    int
	BestScore     float64
	AvgScore      float64
	TopDeals      []*ProcessedListing
}
