package parser

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"car-deal-finder/models"
	"car-deal-finder/utils"
)

const sourceMarketplace = "Facebook Marketplace"

// Marketplace export column layout (no header names worth trusting):
// 0=url, 1=image, 2=price, 3=title, 4=location, 5=mileage, 6=alt price.
const (
	colURL      = 0
	colPrice    = 2
	colTitle    = 3
	colLocation = 4
	colMileage  = 5
	colAltPrice = 6
)

// Listings whose title contains any of these are parts ads, wanted ads or
// scrap buyers, not cars for sale.
var junkTitleKeywords = []string{
	"parts", "wanted", "buy cars", "cash for cars", "scrap", "tires", "rims",
	"engine", "transmission", "battery", "wrecking", "salvage", "repair",
	"service", "mechanic", "desk", "cowl", "enclosed mobility", "scooter",
	"trades or offer", "we buy cars", "cash cash cash", "any car and truck",
}

// knownMakes resolves the first word (or two) of a title to a manufacturer.
// Two-word makes are checked before single words so "land rover discovery"
// never parses as make "land".
var knownMakes = map[string]string{
	"land rover":    "Land Rover",
	"alfa romeo":    "Alfa Romeo",
	"aston martin":  "Aston Martin",
	"acura":         "Acura",
	"audi":          "Audi",
	"bentley":       "Bentley",
	"bmw":           "BMW",
	"buick":         "Buick",
	"cadillac":      "Cadillac",
	"chevrolet":     "Chevrolet",
	"chrysler":      "Chrysler",
	"dodge":         "Dodge",
	"ferrari":       "Ferrari",
	"fiat":          "Fiat",
	"ford":          "Ford",
	"genesis":       "Genesis",
	"gmc":           "GMC",
	"honda":         "Honda",
	"hyundai":       "Hyundai",
	"infiniti":      "Infiniti",
	"jaguar":        "Jaguar",
	"jeep":          "Jeep",
	"kia":           "Kia",
	"lamborghini":   "Lamborghini",
	"lexus":         "Lexus",
	"lincoln":       "Lincoln",
	"lotus":         "Lotus",
	"maserati":      "Maserati",
	"mazda":         "Mazda",
	"mclaren":       "McLaren",
	"mercedes-benz": "Mercedes-Benz",
	"mini":          "MINI",
	"mitsubishi":    "Mitsubishi",
	"nissan":        "Nissan",
	"polestar":      "Polestar",
	"pontiac":       "Pontiac",
	"porsche":       "Porsche",
	"ram":           "Ram",
	"rivian":        "Rivian",
	"rolls-royce":   "Rolls-Royce",
	"saab":          "Saab",
	"saturn":        "Saturn",
	"scion":         "Scion",
	"smart":         "Smart",
	"subaru":        "Subaru",
	"suzuki":        "Suzuki",
	"tesla":         "Tesla",
	"toyota":        "Toyota",
	"volkswagen":    "Volkswagen",
	"volvo":         "Volvo",
}

var (
	yearRe       = regexp.MustCompile(`\b(\d{4})\b`)
	nonNumericRe = regexp.MustCompile(`[^\d.]`)
	kKmRe        = regexp.MustCompile(`(\d+\.?\d*)\s*k\s*km`)
	kmRe         = regexp.MustCompile(`(\d+\.?\d*)\s*km`)
	kMilesRe     = regexp.MustCompile(`(\d+\.?\d*)\s*k\s*miles`)
	milesRe      = regexp.MustCompile(`(\d+\.?\d*)\s*miles`)
	bareNumRe    = regexp.MustCompile(`^(\d+\.?\d*)$`)
)

const milesToKm = 1.60934

// MarketplaceParser turns raw marketplace CSV exports into listings.
type MarketplaceParser struct {
	logger *utils.Logger

	// Overridable in tests for the low-price heuristic.
	currentYear int
}

func NewMarketplaceParser(logger *utils.Logger) *MarketplaceParser {
	return &MarketplaceParser{
		logger:      logger,
		currentYear: time.Now().Year(),
	}
}

// ParseGlob parses every CSV export matching the pattern and concatenates the
// results. A file that fails to open is logged and skipped, not fatal.
func (p *MarketplaceParser) ParseGlob(pattern string) ([]*models.Listing, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad marketplace glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		p.logger.Warn("[parser] No marketplace exports match %s", pattern)
		return nil, nil
	}

	var all []*models.Listing
	for _, path := range paths {
		listings, err := p.ParseFile(path)
		if err != nil {
			p.logger.Error("[parser] Skipping %s: %v", path, err)
			continue
		}
		all = append(all, listings...)
	}
	return all, nil
}

// ParseFile parses one marketplace CSV export.
func (p *MarketplaceParser) ParseFile(path string) ([]*models.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) < 2 {
		p.logger.Warn("[parser] %s has no data rows", path)
		return nil, nil
	}

	listings := make([]*models.Listing, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		l, ok := p.parseRow(row)
		if !ok {
			skipped++
			continue
		}
		listings = append(listings, l)
	}

	p.logger.Info("[parser] %s: %d listings parsed, %d rows skipped",
		filepath.Base(path), len(listings), skipped)
	return listings, nil
}

func (p *MarketplaceParser) parseRow(row []string) (*models.Listing, bool) {
	title := field(row, colTitle)
	url := field(row, colURL)
	if url == "" || title == "" {
		return nil, false
	}

	lower := strings.ToLower(title)
	for _, kw := range junkTitleKeywords {
		if strings.Contains(lower, kw) {
			return nil, false
		}
	}

	year, make, model := ParseTitle(title)
	if year == 0 || make == "" || model == "" {
		return nil, false
	}

	price, ok := ParsePrice(field(row, colPrice))
	if !ok {
		price, ok = ParsePrice(field(row, colAltPrice))
	}
	if !ok {
		return nil, false
	}
	if price == 0 {
		// "Free" listings are scams or scrap.
		return nil, false
	}

	mileage, hasMileage := ParseMileage(field(row, colMileage))

	// Sub-$2000 on a newish or low-mileage car is usually a monthly payment
	// posted as the price.
	if price < 2000 {
		newish := p.currentYear-year < 10
		lowMileage := hasMileage && mileage < 150000
		if newish || lowMileage {
			return nil, false
		}
	}

	mileageKm := -1
	if hasMileage {
		mileageKm = int(mileage)
	}

	return &models.Listing{
		URL:      url,
		Title:    title,
		Year:     year,
		Make:     make,
		Model:    model,
		Price:    price,
		Mileage:  mileageKm,
		Location: field(row, colLocation),
		Source:   sourceMarketplace,
	}, true
}

func field(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ParseTitle extracts year, make and model from a free-form listing title like
// "2010 Honda civic". Returns zero values for whatever it cannot determine.
func ParseTitle(title string) (int, string, string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, "", ""
	}

	year := 0
	remaining := title
	if m := yearRe.FindString(title); m != "" {
		year, _ = strconv.Atoi(m)
		remaining = strings.TrimSpace(strings.Replace(title, m, "", 1))
	}

	parts := strings.Fields(remaining)
	if len(parts) == 0 {
		return year, "", ""
	}

	if len(parts) >= 2 {
		two := strings.ToLower(parts[0] + " " + parts[1])
		if make, ok := knownMakes[two]; ok {
			return year, make, strings.Join(parts[2:], " ")
		}
	}
	if make, ok := knownMakes[strings.ToLower(parts[0])]; ok {
		return year, make, strings.Join(parts[1:], " ")
	}

	// Unknown make: without a year the title is too ambiguous to guess from.
	if year == 0 {
		return 0, "", ""
	}
	return year, parts[0], strings.Join(parts[1:], " ")
}

// ParsePrice parses marketplace price strings like "CA$1,234" or "$15,000".
// "Free" parses as 0; the second return reports whether anything parsed.
func ParsePrice(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, "free") {
		return 0, true
	}
	cleaned := nonNumericRe.ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseMileage parses odometer strings in the shapes people actually type:
// "200K km", "85,000 km", "120k miles", "150000". Miles convert to km; bare
// numbers under 500 are assumed to mean thousands.
func ParseMileage(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ",", "")
	if s == "" {
		return 0, false
	}

	if m := kKmRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return v * 1000, true
	}
	if m := kmRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if v > 3000 {
			return v, true
		}
		return v * 1000, true
	}
	if m := kMilesRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return v * 1000 * milesToKm, true
	}
	if m := milesRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if v <= 3000 {
			v *= 1000
		}
		return v * milesToKm, true
	}
	if m := bareNumRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		if v < 500 {
			return v * 1000, true
		}
		return v, true
	}
	return 0, false
}
