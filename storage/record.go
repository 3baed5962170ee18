package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"car-deal-finder/models"
)

// Record is one flattened ledger row. Values stay strings end to end so rows
// read back from an old ledger survive a merge untouched, whatever schema or
// formatting they were written with. Merges build new Records rather than
// editing rows in place.
type Record map[string]string

// DateLayout is the scraped_date wire format.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05"}

// URL returns the row's listing URL.
func (r Record) URL() string {
	return strings.TrimSpace(r["url"])
}

// ScrapedDate parses the row's scraped_date. The second return is false when
// the field is missing or malformed; such rows are never aged out.
func (r Record) ScrapedDate() (time.Time, bool) {
	raw := strings.TrimSpace(r["scraped_date"])
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DealScore parses the row's deal score. False for error rows and malformed
// values; those sort to the bottom of the ledger.
func (r Record) DealScore() (float64, bool) {
	return ParseNumber(r["deal_score"])
}

// Float parses an arbitrary column as a number, tolerating currency
// formatting.
func (r Record) Float(col string) (float64, bool) {
	return ParseNumber(r[col])
}

// ParseNumber parses a numeric cell, stripping the $ and thousands commas the
// ledger writer adds to monetary columns. NaN cells report false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlattenProcessed converts a valued listing into a ledger Record, expanding
// the TCO breakdown into tco_* columns. Error-marked listings get an error
// column and empty score/TCO cells.
func FlattenProcessed(p *models.ProcessedListing) Record {
	r := Record{
		"id":              p.ID,
		"url":             p.URL,
		"make":            p.Make,
		"model":           p.Model,
		"year":            strconv.Itoa(p.Year),
		"price":           num(p.Price),
		"mileage":         strconv.Itoa(p.Mileage),
		"composite_score": num(p.CompositeScore),
		"scraped_date":    p.ScrapedDate.Format(DateLayout),
		"deal_score":      num(p.DealScore),
	}

	if p.Err != "" {
		r["error"] = p.Err
		return r
	}

	r["avg_annual_tco"] = num(p.AvgAnnualTCO)
	r["estimated_resale_after_period"] = num(p.EstResale)

	if t := p.TCO; t != nil {
		r["tco_purchase_tax"] = num(t.PurchaseTax)
		r["tco_total_depreciation"] = num(t.TotalDepreciation)
		r["tco_avg_annual_depreciation"] = num(t.AvgAnnualDepreciation)
		r["tco_total_fuel_cost"] = num(t.TotalFuel)
		r["tco_avg_annual_fuel_cost"] = num(t.AvgAnnualFuel)
		r["tco_fuel_price_per_l"] = num(t.FuelPricePerLitre)
		r["tco_fuel_consumption_l_100km"] = num(t.FuelL100Km)
		r["tco_total_maintenance"] = num(t.TotalMaintenance)
		r["tco_avg_annual_maintenance"] = num(t.AvgAnnualMaintenance)
		r["tco_total_insurance"] = num(t.TotalInsurance)
		r["tco_avg_annual_insurance"] = num(t.AvgAnnualInsurance)
		r["tco_total_over_period"] = num(t.TotalOverPeriod)
		r["tco_calculation_years"] = strconv.Itoa(t.HorizonYears)
		r["tco_remaining_lifespan_km"] = num(t.RemainingLifespanKm)
		r["tco_cost_per_km"] = num(t.CostPerKm)
		if t.QIRRate != nil {
			r["tco_reliability_qir"] = num(*t.QIRRate)
		}
		if t.DefectRate != nil {
			r["tco_reliability_defect_rate"] = num(*t.DefectRate)
		}
	}
	return r
}

// FlattenAll converts a batch of valued listings.
func FlattenAll(listings []*models.ProcessedListing) []Record {
	records := make([]Record, 0, len(listings))
	for _, p := range listings {
		records = append(records, FlattenProcessed(p))
	}
	return records
}

func num(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return fmt.Sprintf("%g", f)
}
