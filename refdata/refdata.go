package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"car-deal-finder/config"
	"car-deal-finder/models"
	"car-deal-finder/utils"
)

type vehicleKey struct {
	make  string
	model string
	year  int
}

type modelKey struct {
	make  string
	model string
}

// Store holds the three read-only reference tables loaded at startup: the
// approved-vehicle allow-list, the legacy reliability chart and the fuel
// consumption ratings. It is built once and read concurrently-safe thereafter
// (no mutation after New returns).
type Store struct {
	logger *utils.Logger

	approved    []models.ApprovedVehicle
	approvedSet map[vehicleKey]struct{}

	qir         map[vehicleKey]float64
	defect      map[vehicleKey]float64
	qirYears    map[modelKey][]int
	defectYears map[modelKey][]int

	fuelExact    map[vehicleKey]float64
	fuelModelAvg map[modelKey]float64
	fuelMakeAvg  map[string]float64
	defaultFuel  float64
}

// NormalizeMake lowercases and trims a make string for matching.
func NormalizeMake(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeModel lowercases a model string and collapses hyphens to spaces so
// "cx-5" and "cx 5" compare equal.
func NormalizeModel(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(s), "-", " "))
}

// New loads the three reference tables. A missing or structurally invalid
// approved-vehicles file is a hard error: filtering is meaningless without
// the allow-list. The reliability chart and fuel ratings degrade to warnings
// and fallback defaults.
func New(cfg *config.Config, logger *utils.Logger) (*Store, error) {
	s := &Store{
		logger:       logger,
		approvedSet:  make(map[vehicleKey]struct{}),
		qir:          make(map[vehicleKey]float64),
		defect:       make(map[vehicleKey]float64),
		qirYears:     make(map[modelKey][]int),
		defectYears:  make(map[modelKey][]int),
		fuelExact:    make(map[vehicleKey]float64),
		fuelModelAvg: make(map[modelKey]float64),
		fuelMakeAvg:  make(map[string]float64),
		defaultFuel:  cfg.DefaultFuelL100Km,
	}
	if s.defaultFuel <= 0 {
		s.defaultFuel = 9.0
	}

	if err := s.loadApproved(cfg.ApprovedVehiclesPath); err != nil {
		return nil, fmt.Errorf("refdata: approved vehicles: %w", err)
	}
	logger.Info("[refdata] Loaded %d approved vehicles (%d unique make/model/year keys)",
		len(s.approved), len(s.approvedSet))

	if err := s.loadReliability(cfg.ReliabilityChartPath); err != nil {
		logger.Warn("[refdata] Reliability chart unavailable (%v) — reliability scores will be null", err)
	} else {
		logger.Info("[refdata] Loaded reliability chart: %d QIR entries, %d defect entries",
			len(s.qir), len(s.defect))
	}

	if err := s.loadFuel(cfg.FuelConsumptionPath); err != nil {
		logger.Warn("[refdata] Fuel consumption data unavailable (%v) — using %.1f L/100km default",
			err, s.defaultFuel)
	} else {
		logger.Info("[refdata] Loaded fuel consumption ratings for %d make/model/year combinations",
			len(s.fuelExact))
	}

	return s, nil
}

// Approved returns the loaded allow-list records.
func (s *Store) Approved() []models.ApprovedVehicle {
	return s.approved
}

// IsApproved reports whether the exact (make, model, year) key is on the
// allow-list. Inputs must already be normalized.
func (s *Store) IsApproved(make, model string, year int) bool {
	_, ok := s.approvedSet[vehicleKey{make, model, year}]
	return ok
}

// FuelConsumption returns combined L/100km for a vehicle, falling back from
// the exact year to the make/model average, the make-wide average, and
// finally the configured default. Always positive.
func (s *Store) FuelConsumption(make, model string, year int) float64 {
	make = NormalizeMake(make)
	model = strings.ToLower(strings.TrimSpace(model))

	if v, ok := s.fuelExact[vehicleKey{make, model, year}]; ok {
		return v
	}
	if v, ok := s.fuelModelAvg[modelKey{make, model}]; ok {
		return v
	}
	if v, ok := s.fuelMakeAvg[make]; ok {
		return v
	}
	return s.defaultFuel
}

// Reliability returns the legacy chart's QIR and defect rates for a vehicle,
// trying the exact year first and then the nearest year within 2. Either
// value may be nil; callers treat nil as neutral, not zero.
func (s *Store) Reliability(make, model string, year int) (qir, defect *float64) {
	make = NormalizeMake(make)
	model = strings.ToLower(strings.TrimSpace(model))
	mk := modelKey{make, model}

	qir = s.lookupNearest(s.qir, s.qirYears[mk], mk, year)
	defect = s.lookupNearest(s.defect, s.defectYears[mk], mk, year)
	return qir, defect
}

func (s *Store) lookupNearest(table map[vehicleKey]float64, years []int, mk modelKey, year int) *float64 {
	if v, ok := table[vehicleKey{mk.make, mk.model, year}]; ok {
		return &v
	}

	bestDiff := 0
	found := false
	var best int
	for _, y := range years {
		diff := y - year
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			found, bestDiff, best = true, diff, y
		}
	}
	if found && bestDiff <= 2 {
		v := table[vehicleKey{mk.make, mk.model, best}]
		return &v
	}
	return nil
}

func (s *Store) loadApproved(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}

	makeIdx := columnIndex(header, "make")
	modelIdx := columnIndex(header, "model")
	yearIdx := columnIndex(header, "year")
	if makeIdx < 0 || modelIdx < 0 || yearIdx < 0 {
		return fmt.Errorf("missing required column (need Make, Model, Year; got %v)", header)
	}

	scoreIdx := columnIndex(header, "composite score")
	if scoreIdx < 0 {
		scoreIdx = columnIndex(header, "compositescore")
	}
	qirIdx := columnIndex(header, "qirrate")
	defectIdx := columnIndex(header, "defectrate")
	if scoreIdx < 0 && (qirIdx < 0 || defectIdx < 0) {
		return fmt.Errorf("missing score columns (need Composite score, or QIRRate and DefectRate)")
	}
	filterIdx := columnIndex(header, "filter")

	for _, row := range rows {
		make := NormalizeMake(field(row, makeIdx))
		model := NormalizeModel(field(row, modelIdx))
		year, err := strconv.Atoi(strings.TrimSpace(field(row, yearIdx)))
		if make == "" || model == "" || err != nil {
			continue
		}
		// The curators mark rows in and out with a Filter column.
		if filterIdx >= 0 {
			if keep, err := strconv.ParseBool(strings.TrimSpace(field(row, filterIdx))); err == nil && !keep {
				continue
			}
		}

		score := 0.0
		if scoreIdx >= 0 {
			// Stored as a 0–1 fraction in the source sheet.
			if v, err := strconv.ParseFloat(strings.TrimSpace(field(row, scoreIdx)), 64); err == nil {
				score = v * 100
			}
		}

		s.approved = append(s.approved, models.ApprovedVehicle{
			Make:           make,
			Model:          model,
			Year:           year,
			CompositeScore: score,
		})
		s.approvedSet[vehicleKey{make, model, year}] = struct{}{}
	}

	if len(s.approved) == 0 {
		return fmt.Errorf("no usable rows in %q", path)
	}
	return nil
}

func (s *Store) loadReliability(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}

	typeIdx := columnIndex(header, "charttype")
	makeIdx := columnIndex(header, "make")
	modelIdx := columnIndex(header, "model")
	yearIdx := columnIndex(header, "year")
	valueIdx := columnIndex(header, "value")
	if typeIdx < 0 || makeIdx < 0 || modelIdx < 0 || yearIdx < 0 || valueIdx < 0 {
		return fmt.Errorf("missing required column (need ChartType, Make, Model, Year, Value; got %v)", header)
	}

	for _, row := range rows {
		make := NormalizeMake(field(row, makeIdx))
		model := strings.ToLower(strings.TrimSpace(field(row, modelIdx)))
		year, yearErr := strconv.Atoi(strings.TrimSpace(field(row, yearIdx)))
		value, valErr := strconv.ParseFloat(strings.TrimSpace(field(row, valueIdx)), 64)
		if make == "" || model == "" || yearErr != nil || valErr != nil {
			continue
		}

		key := vehicleKey{make, model, year}
		mk := modelKey{make, model}
		switch strings.TrimSpace(field(row, typeIdx)) {
		case "QIRRate":
			s.qir[key] = value
			s.qirYears[mk] = append(s.qirYears[mk], year)
		case "DefectRate":
			s.defect[key] = value
			s.defectYears[mk] = append(s.defectYears[mk], year)
		}
	}
	return nil
}

func (s *Store) loadFuel(path string) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}

	yearIdx := columnIndex(header, "model year")
	if yearIdx < 0 {
		yearIdx = columnIndex(header, "year")
	}
	makeIdx := columnIndex(header, "make")
	modelIdx := columnIndex(header, "model")
	combinedIdx := columnContains(header, "combined")
	if yearIdx < 0 || makeIdx < 0 || modelIdx < 0 || combinedIdx < 0 {
		return fmt.Errorf("missing required column (need model year, make, model, combined consumption; got %v)", header)
	}

	// Multiple trims share a make/model/year; average them.
	sums := make(map[vehicleKey]float64)
	counts := make(map[vehicleKey]int)
	modelSums := make(map[modelKey]float64)
	modelCounts := make(map[modelKey]int)
	makeSums := make(map[string]float64)
	makeCounts := make(map[string]int)

	for _, row := range rows {
		make := NormalizeMake(field(row, makeIdx))
		model := strings.ToLower(strings.TrimSpace(field(row, modelIdx)))
		year, yearErr := strconv.Atoi(strings.TrimSpace(field(row, yearIdx)))
		combined, valErr := strconv.ParseFloat(strings.TrimSpace(field(row, combinedIdx)), 64)
		if make == "" || model == "" || yearErr != nil || valErr != nil || combined <= 0 {
			continue
		}

		key := vehicleKey{make, model, year}
		sums[key] += combined
		counts[key]++
		mk := modelKey{make, model}
		modelSums[mk] += combined
		modelCounts[mk]++
		makeSums[make] += combined
		makeCounts[make]++
	}

	for key, sum := range sums {
		s.fuelExact[key] = sum / float64(counts[key])
	}
	for mk, sum := range modelSums {
		s.fuelModelAvg[mk] = sum / float64(modelCounts[mk])
	}
	for make, sum := range makeSums {
		s.fuelMakeAvg[make] = sum / float64(makeCounts[make])
	}
	return nil
}

// readCSV loads a whole CSV file and splits off the header row. The first
// header cell is stripped of a UTF-8 BOM if present.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %q: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty file %q", path)
	}

	header := all[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	return header, all[1:], nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func columnContains(header []string, substr string) int {
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), substr) {
			return i
		}
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
