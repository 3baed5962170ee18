package parser

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"car-deal-finder/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger("error") }

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title     string
		wantYear  int
		wantMake  string
		wantModel string
	}{
		{"2010 Honda civic", 2010, "Honda", "civic"},
		{"2018 Toyota Corolla LE", 2018, "Toyota", "Corolla LE"},
		{"Mazda CX-5 2019", 2019, "Mazda", "CX-5"},
		{"2015 Land Rover Discovery", 2015, "Land Rover", "Discovery"},
		{"2012 mercedes-benz C300", 2012, "Mercedes-Benz", "C300"},
		{"Honda Civic", 0, "Honda", "Civic"},
		{"2016 Pontiac Vibe", 2016, "Pontiac", "Vibe"},
		// Unknown make but year present: first word is assumed the make.
		{"2014 Geo Metro", 2014, "Geo", "Metro"},
		// No year, no known make: too ambiguous.
		{"Great car must sell", 0, "", ""},
		{"", 0, "", ""},
	}

	for _, tt := range tests {
		year, make, model := ParseTitle(tt.title)
		if year != tt.wantYear || make != tt.wantMake || model != tt.wantModel {
			t.Errorf("ParseTitle(%q) = (%d, %q, %q); want (%d, %q, %q)",
				tt.title, year, make, model, tt.wantYear, tt.wantMake, tt.wantModel)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"CA$1,234", 1234, true},
		{"$15,000", 15000, true},
		{"Free", 0, true},
		{"$1,200.50", 1200.50, true},
		{"", 0, false},
		{"Call for price", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParsePrice(%q) = (%.2f, %v); want (%.2f, %v)",
				tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"200K km", 200000, true},
		{"85,000 km", 85000, true},
		{"120 km", 120000, true}, // small km figure means thousands
		{"150000", 150000, true},
		{"150", 150000, true}, // bare small number means thousands
		{"100k miles", 100 * 1000 * 1.60934, true},
		{"50000 miles", 50000 * 1.60934, true},
		{"", 0, false},
		{"low mileage", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseMileage(tt.raw)
		if ok != tt.wantOK || math.Abs(got-tt.want) > 0.01 {
			t.Errorf("ParseMileage(%q) = (%.2f, %v); want (%.2f, %v)",
				tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func writeExport(t *testing.T, rows string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "facebook-2026-01-01.csv")
	header := "url,image,price,title,location,mileage,alt_price\n"
	if err := os.WriteFile(path, []byte(header+rows), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFileSkipsJunkAndFree(t *testing.T) {
	p := NewMarketplaceParser(newTestLogger())
	path := writeExport(t,
		"https://fb.com/1,img,\"$8,500\",2015 Toyota Corolla,Toronto,\"120,000 km\",\n"+
			"https://fb.com/2,img,$500,Cash for cars any condition,Toronto,,\n"+
			"https://fb.com/3,img,Free,2016 Honda Civic,Ottawa,90k km,\n")

	listings, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}

	l := listings[0]
	if l.Make != "Toyota" || l.Model != "Corolla" || l.Year != 2015 {
		t.Errorf("wrong vehicle: %d %s %s", l.Year, l.Make, l.Model)
	}
	if l.Price != 8500 {
		t.Errorf("price = %.2f; want 8500", l.Price)
	}
	if l.Mileage != 120000 {
		t.Errorf("mileage = %d; want 120000", l.Mileage)
	}
	if l.Source != sourceMarketplace {
		t.Errorf("source = %q", l.Source)
	}
}

func TestParseFileLowPriceHeuristic(t *testing.T) {
	p := NewMarketplaceParser(newTestLogger())
	p.currentYear = 2026

	// $400 for a 2022 car is a monthly payment, not a price. $1,500 for a
	// 20-year-old high-mileage beater is plausible.
	path := writeExport(t,
		"https://fb.com/1,img,$400,2022 Hyundai Elantra,Toronto,30k km,\n"+
			"https://fb.com/2,img,\"$1,500\",2006 Honda Civic,Hamilton,\"280,000 km\",\n")

	listings, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	if listings[0].Year != 2006 {
		t.Errorf("kept wrong listing: %d %s", listings[0].Year, listings[0].Model)
	}
}

func TestParseFileAltPriceFallback(t *testing.T) {
	p := NewMarketplaceParser(newTestLogger())
	path := writeExport(t,
		"https://fb.com/1,img,SOLD,2015 Mazda 3,Toronto,\"150,000 km\",\"CA$7,999\"\n")

	listings, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	if listings[0].Price != 7999 {
		t.Errorf("price = %.2f; want 7999 from alt column", listings[0].Price)
	}
}

func TestParseFileMissingMileageKept(t *testing.T) {
	p := NewMarketplaceParser(newTestLogger())
	path := writeExport(t,
		"https://fb.com/1,img,\"$9,000\",2014 Subaru Impreza,Barrie,,\n")

	listings, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	if listings[0].Mileage != -1 {
		t.Errorf("mileage = %d; want -1 sentinel for missing", listings[0].Mileage)
	}
}

func TestParseGlobNoMatches(t *testing.T) {
	p := NewMarketplaceParser(newTestLogger())
	listings, err := p.ParseGlob(filepath.Join(t.TempDir(), "nope-*.csv"))
	if err != nil {
		t.Fatalf("ParseGlob: %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("expected no listings, got %d", len(listings))
	}
}
