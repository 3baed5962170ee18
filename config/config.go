package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DepreciationBand maps a vehicle-life age ceiling to an annual depreciation
// rate. Bands are evaluated in order; the first band whose MaxAge exceeds the
// simulated age applies. A MaxAge of -1 marks the open-ended final band.
type DepreciationBand struct {
	MaxAge int
	Rate   float64
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string

	// Reference data files
	ApprovedVehiclesPath string
	ReliabilityChartPath string
	FuelConsumptionPath  string

	// Listing inputs
	MarketplaceGlob  string
	ScrapeAutoTrader bool
	ScrapeLimit      int
	MaxConcurrency   int
	RateLimitMs      int
	MaxRetries       int
	ChromeBin        string

	// Valuation parameters
	PriceCeiling         float64
	TaxRate              float64
	AnnualInsurance      float64
	Province             string
	OwnershipYears       int
	AnnualMileageKm      int
	VehicleLifespanKm    int
	BaseMaintenancePerKm float64
	DefaultFuelL100Km    float64
	ScoringPolicy        string

	// Ledger
	LedgerPath    string
	StalenessDays int

	// Optional Postgres mirror of the ledger
	PostgresMirror   bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Reference tables injected into the valuation engine. Populated from the
	// defaults below; kept on the Config so deployments can swap them out
	// without touching the engine.
	FuelPricesPerLitre map[string]float64
	MaintenanceFactors map[string]float64
	DepreciationBands  []DepreciationBand
}

// Provincial average fuel prices in $/L. Stand-ins for a live feed.
var defaultFuelPrices = map[string]float64{
	"AB": 1.45, "BC": 1.65, "MB": 1.50, "NB": 1.55, "NL": 1.60,
	"NS": 1.58, "NT": 1.70, "NU": 2.00, "ON": 1.52, "PE": 1.56,
	"QC": 1.62, "SK": 1.48, "YT": 1.65,
}

// Relative maintenance cost multipliers by make. Unlisted makes get 1.0.
var defaultMaintenanceFactors = map[string]float64{
	"toyota": 0.8, "lexus": 0.85, "scion": 0.85,
	"honda": 0.9, "acura": 0.95, "mazda": 0.9, "mitsubishi": 0.9,
	"hyundai": 1.0, "kia": 1.0, "nissan": 1.0, "infiniti": 1.1, "subaru": 1.0,
	"ford": 1.05, "lincoln": 1.15, "gm": 1.05, "chevrolet": 1.05, "buick": 1.05, "cadillac": 1.2,
	"chrysler": 1.1, "dodge": 1.1, "ram": 1.1, "jeep": 1.1,
	"volkswagen": 1.15, "audi": 1.3,
	"bmw": 1.5, "mercedes-benz": 1.5, "mini": 1.2,
	"volvo": 1.3, "jaguar": 1.4, "land rover": 1.6,
}

// Declining-balance depreciation by vehicle-life age: steep while the car is
// young, tapering as it ages.
var defaultDepreciationBands = []DepreciationBand{
	{MaxAge: 1, Rate: 0.20},
	{MaxAge: 3, Rate: 0.15},
	{MaxAge: 6, Rate: 0.12},
	{MaxAge: -1, Rate: 0.10},
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ApprovedVehiclesPath: getEnv("APPROVED_VEHICLES_PATH", "./data/approved_vehicles_reliability.csv"),
		ReliabilityChartPath: getEnv("RELIABILITY_CHART_PATH", "./data/chart_data_filtered.csv"),
		FuelConsumptionPath:  getEnv("FUEL_CONSUMPTION_PATH", "./data/fuel_consumption_ratings.csv"),

		MarketplaceGlob:  getEnv("MARKETPLACE_CSV_GLOB", "./data/facebook-*.csv"),
		ScrapeAutoTrader: getEnvBool("SCRAPE_AUTOTRADER", false),
		ScrapeLimit:      getEnvInt("SCRAPE_LIMIT", 100),
		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		ChromeBin:        getEnv("CHROME_BIN", ""),

		PriceCeiling:         getEnvFloat("PRICE_CEILING", 20000),
		TaxRate:              getEnvFloat("TAX_RATE", 0.13),
		AnnualInsurance:      getEnvFloat("ANNUAL_INSURANCE", 1800),
		Province:             getEnv("PROVINCE", "ON"),
		OwnershipYears:       getEnvInt("OWNERSHIP_YEARS", 5),
		AnnualMileageKm:      getEnvInt("ANNUAL_MILEAGE_KM", 15000),
		VehicleLifespanKm:    getEnvInt("VEHICLE_LIFESPAN_KM", 300000),
		BaseMaintenancePerKm: getEnvFloat("BASE_MAINTENANCE_PER_KM", 0.08),
		DefaultFuelL100Km:    getEnvFloat("DEFAULT_FUEL_L_100KM", 9.0),
		ScoringPolicy:        getEnv("SCORING_POLICY", "composite"),

		LedgerPath:    getEnv("LEDGER_PATH", "./data/output.csv"),
		StalenessDays: getEnvInt("STALENESS_DAYS", 7),

		PostgresMirror:   getEnvBool("POSTGRES_MIRROR", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "dealfinder"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "dealfinder123"),
		PostgresDB:       getEnv("POSTGRES_DB", "deals_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		FuelPricesPerLitre: copyFloatMap(defaultFuelPrices),
		MaintenanceFactors: copyFloatMap(defaultMaintenanceFactors),
		DepreciationBands:  append([]DepreciationBand(nil), defaultDepreciationBands...),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func copyFloatMap(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
