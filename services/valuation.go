package services

import (
	"fmt"
	"math"
	"time"

	"car-deal-finder/config"
	"car-deal-finder/models"
	"car-deal-finder/refdata"
	"car-deal-finder/utils"
)

// Maintenance cost grows with accumulated mileage relative to this baseline.
const maintenanceMileageBaseline = 150000.0

// Valuator computes the multi-year TCO breakdown and deal score for filtered,
// approved listings.
type Valuator struct {
	store  *refdata.Store
	policy ScoringPolicy
	logger *utils.Logger

	taxRate         float64
	annualInsurance float64
	province        string
	horizonYears    int
	annualMileageKm int
	lifespanKm      int
	baseMaintPerKm  float64

	fuelPrices   map[string]float64
	maintFactors map[string]float64
	depBands     []config.DepreciationBand

	// Overridable in tests for deterministic vehicle ages.
	nowYear int
}

// NewValuator wires a Valuator from config, the reference store and a scoring
// policy.
func NewValuator(cfg *config.Config, store *refdata.Store, policy ScoringPolicy, logger *utils.Logger) *Valuator {
	return &Valuator{
		store:           store,
		policy:          policy,
		logger:          logger,
		taxRate:         cfg.TaxRate,
		annualInsurance: cfg.AnnualInsurance,
		province:        cfg.Province,
		horizonYears:    cfg.OwnershipYears,
		annualMileageKm: cfg.AnnualMileageKm,
		lifespanKm:      cfg.VehicleLifespanKm,
		baseMaintPerKm:  cfg.BaseMaintenancePerKm,
		fuelPrices:      cfg.FuelPricesPerLitre,
		maintFactors:    cfg.MaintenanceFactors,
		depBands:        cfg.DepreciationBands,
		nowYear:         time.Now().Year(),
	}
}

// Process values a batch of matched listings. Listings with unusable numeric
// fields are emitted with an error marker and NaN scores instead of being
// dropped, so a partial batch still produces a full ledger update. The second
// return is the number of error-marked rows.
func (v *Valuator) Process(matches []Match) ([]*models.ProcessedListing, int) {
	processed := make([]*models.ProcessedListing, 0, len(matches))
	errored := 0
	today := time.Now()

	for i, m := range matches {
		l := *m.Listing
		l.Make = refdata.NormalizeMake(l.Make)
		l.Model = refdata.NormalizeModel(l.Model)

		p := &models.ProcessedListing{
			Listing:     l,
			ID:          fmt.Sprintf("%s_%s_%d_%g_%d", l.Make, l.Model, l.Year, l.Price, i),
			ScrapedDate: today,
		}

		if l.Year <= 0 || l.Price <= 0 {
			p.Err = "missing or invalid year/price"
			p.DealScore = math.NaN()
			p.AvgAnnualTCO = math.NaN()
			p.EstResale = math.NaN()
			errored++
			v.logger.Warn("[valuation] Could not value %s (%s) — %s", l.Title, l.URL, p.Err)
			processed = append(processed, p)
			continue
		}

		tco := v.CalculateTCO(l.Price, l.Make, l.Model, l.Year, l.Mileage)
		p.TCO = tco
		p.AvgAnnualTCO = tco.AvgAnnualTotal
		p.EstResale = tco.EstimatedResale
		p.CompositeScore = m.Approved.CompositeScore
		p.DealScore = v.policy.Score(tco, p.CompositeScore)

		v.logger.Debug("[valuation] %d %s %s — TCO $%.0f/yr, $%.3f/km, score %.2f",
			l.Year, l.Make, l.Model, tco.AvgAnnualTotal, tco.CostPerKm, p.DealScore)
		processed = append(processed, p)
	}

	v.logger.Info("[valuation] Valued %d listings (%d with errors)", len(processed), errored)
	return processed, errored
}

// CalculateTCO estimates the cost of owning one vehicle over the configured
// horizon: purchase tax, age-banded declining-balance depreciation, fuel at
// the provincial price, maintenance rising with simulated age and mileage,
// and flat insurance.
func (v *Valuator) CalculateTCO(price float64, make, model string, year, mileage int) *models.TCOBreakdown {
	h := v.horizonYears
	age := v.nowYear - year
	if age < 0 {
		age = 0
	}

	t := &models.TCOBreakdown{HorizonYears: h}

	t.PurchaseTax = price * v.taxRate

	// Depreciation: walk the listing price down one model-life year at a
	// time, using the band for the vehicle's age in that simulated year.
	residual := price
	for i := 0; i < h; i++ {
		residual *= 1 - v.depreciationRate(age+i)
	}
	if residual < 0 {
		residual = 0
	}
	t.EstimatedResale = residual
	t.TotalDepreciation = price - residual
	t.AvgAnnualDepreciation = perYear(t.TotalDepreciation, h)

	t.FuelL100Km = v.store.FuelConsumption(make, model, year)
	t.FuelPricePerLitre = v.fuelPrice()
	t.AvgAnnualFuel = float64(v.annualMileageKm) / 100 * t.FuelL100Km * t.FuelPricePerLitre
	t.TotalFuel = t.AvgAnnualFuel * float64(h)

	// Maintenance rises over the horizon as the simulated car ages and
	// accumulates mileage.
	simMileage := float64(mileage)
	simAge := age
	for i := 0; i < h; i++ {
		t.TotalMaintenance += v.annualMaintenance(make, simMileage, simAge)
		simMileage += float64(v.annualMileageKm)
		simAge++
	}
	t.AvgAnnualMaintenance = perYear(t.TotalMaintenance, h)

	t.AvgAnnualInsurance = v.annualInsurance
	t.TotalInsurance = v.annualInsurance * float64(h)

	t.TotalOverPeriod = t.PurchaseTax + t.TotalDepreciation + t.TotalFuel +
		t.TotalMaintenance + t.TotalInsurance
	t.AvgAnnualTotal = perYear(t.TotalOverPeriod, h)

	if v.annualMileageKm > 0 && h > 0 {
		t.CostPerKm = t.AvgAnnualTotal / float64(v.annualMileageKm)
	} else {
		t.CostPerKm = math.Inf(1)
	}

	t.RemainingLifespanKm = float64(v.lifespanKm - mileage)
	if t.RemainingLifespanKm < 0 {
		t.RemainingLifespanKm = 0
	}

	t.QIRRate, t.DefectRate = v.store.Reliability(make, model, year)
	return t
}

func (v *Valuator) depreciationRate(age int) float64 {
	for _, band := range v.depBands {
		if band.MaxAge < 0 || age < band.MaxAge {
			return band.Rate
		}
	}
	return 0
}

// annualMaintenance estimates one year of maintenance for a car in the given
// state: base $/km scaled by the make factor, 10%/year of age, and
// accumulated mileage against the baseline.
func (v *Valuator) annualMaintenance(make string, mileage float64, ageYears int) float64 {
	factor := 1.0
	if f, ok := v.maintFactors[refdata.NormalizeMake(make)]; ok {
		factor = f
	}
	ageFactor := 1 + float64(ageYears)/10
	mileageFactor := 1 + mileage/maintenanceMileageBaseline
	return v.baseMaintPerKm * factor * ageFactor * mileageFactor * float64(v.annualMileageKm)
}

// fuelPrice returns the configured province's per-litre price, or a sane
// national figure when the province is not in the table.
func (v *Valuator) fuelPrice() float64 {
	if p, ok := v.fuelPrices[v.province]; ok {
		return p
	}
	return 1.50
}

// perYear divides a horizon total by the horizon, returning the total itself
// for a zero horizon rather than dividing by zero.
func perYear(total float64, years int) float64 {
	if years <= 0 {
		return total
	}
	return total / float64(years)
}
