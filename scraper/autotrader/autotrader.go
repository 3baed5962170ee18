package autotrader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"car-deal-finder/config"
	"car-deal-finder/models"
	"car-deal-finder/parser"
	"car-deal-finder/utils"
)

const (
	baseURL = "https://www.autotrader.ca"
	source  = "AutoTrader.ca"
)

// Scraper pulls used-car search results off AutoTrader.ca with a headless
// browser. The site renders results client-side, so plain HTTP won't do.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	pool       *utils.WorkerPool
	visitedURL *utils.URLSet
	retry      *utils.RetryConfig

	mu       sync.Mutex
	listings []*models.Listing
}

// New creates a ready-to-use AutoTrader Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:        cfg,
		logger:     logger,
		pool:       utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		visitedURL: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Logger:      logger,
		},
		listings: make([]*models.Listing, 0),
	}
}

// searchURL builds the Ontario used-sedan search, 100 results per page sorted
// by lowest price, capped at the configured price ceiling.
func (s *Scraper) searchURL() string {
	return fmt.Sprintf(
		"%s/cars/sedan-coupe-hatchback/on?rcp=100&rcs=0&srt=9&pRng=%%2C%d&prx=-2&hprc=True&wcp=True&sts=Used&inMarket=advancedSearch",
		baseURL, int(s.cfg.PriceCeiling))
}

// Scrape walks the search result pages until the listing limit is reached or
// pagination runs out.
func (s *Scraper) Scrape() ([]*models.Listing, error) {
	s.logger.Info("[autotrader] Starting scrape — limit: %d listings", s.cfg.ScrapeLimit)

	chromeBin := findChromeBinary()
	if s.cfg.ChromeBin != "" {
		chromeBin = s.cfg.ChromeBin
	}
	s.logger.Info("[autotrader] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()
	allocCtx = silentCtx

	currentURL := s.searchURL()
	for page := 1; ; page++ {
		s.logger.Info("[autotrader] Scraping page %d — URL: %s", page, currentURL)

		pageListings, nextURL, err := s.scrapePage(allocCtx, currentURL, page)
		if err != nil {
			s.logger.Error("[autotrader] Page %d failed: %v", page, err)
			break
		}

		if len(pageListings) == 0 {
			s.logger.Warn("[autotrader] Page %d returned 0 listings — stopping", page)
			break
		}

		s.enrichListings(allocCtx, pageListings)

		s.mu.Lock()
		s.listings = append(s.listings, pageListings...)
		total := len(s.listings)
		s.mu.Unlock()

		s.logger.Info("[autotrader] Page %d done — collected %d listings so far", page, total)

		if total >= s.cfg.ScrapeLimit || nextURL == "" {
			break
		}

		currentURL = nextURL
		time.Sleep(time.Duration(s.cfg.RateLimitMs) * time.Millisecond)
	}

	if len(s.listings) > s.cfg.ScrapeLimit {
		s.listings = s.listings[:s.cfg.ScrapeLimit]
	}

	s.logger.Info("[autotrader] Scrape complete — total listings: %d", len(s.listings))
	return s.listings, nil
}

// scrapePage loads one search results page and extracts its result cards.
func (s *Scraper) scrapePage(allocCtx context.Context, pageURL string, pageNum int) ([]*models.Listing, string, error) {
	var listings []*models.Listing
	var nextURL string

	err := s.retry.Do(fmt.Sprintf("scrape-page-%d", pageNum), func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 90*time.Second)
		defer cancelTimeout()

		type cardData struct {
			Title   string `json:"title"`
			Price   string `json:"price"`
			Mileage string `json:"mileage"`
			Specs   string `json:"specs"`
			URL     string `json:"url"`
		}

		var cards []cardData
		var nextPageURL string

		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(5*time.Second),

			// Scroll so lazy-loaded cards render
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),

			chromedp.Evaluate(`
				(function() {
					var results = [];
					var cards = document.querySelectorAll('div.result-item');
					var seen = {};
					for (var i = 0; i < cards.length; i++) {
						var card = cards[i];

						var linkEl = card.querySelector('a.link-overlay') ||
						             card.querySelector('a[href*="/a/"]');
						var url = linkEl ? linkEl.href : '';
						if (!url || seen[url]) continue;
						seen[url] = true;

						var titleEl = card.querySelector('h2.title') || card.querySelector('h2');
						var title = titleEl ? titleEl.innerText.trim() : '';

						var priceEl = card.querySelector('span.price-amount') ||
						              card.querySelector('[class*="price-amount"]');
						var price = priceEl ? priceEl.innerText.trim() : '';

						var kmsEl = card.querySelector('span.kms') ||
						            card.querySelector('span.odometer-proximity');
						var mileage = kmsEl ? kmsEl.innerText.trim() : '';

						var specs = '';
						var specEls = card.querySelectorAll('div.ad-specs li');
						for (var j = 0; j < specEls.length; j++) {
							specs += specEls[j].innerText.toLowerCase() + ' ';
						}

						results.push({
							title:   title,
							price:   price,
							mileage: mileage,
							specs:   specs.trim(),
							url:     url
						});
					}
					return results;
				})()
			`, &cards),

			chromedp.Evaluate(`
				(function() {
					var next = document.querySelector('a.page-direction-control.page-direction-control-right') ||
					           document.querySelector('a[aria-label="Next"]');
					return next && next.href ? next.href : '';
				})()
			`, &nextPageURL),
		)

		if err != nil {
			return fmt.Errorf("chromedp page scrape: %w", err)
		}

		s.logger.Debug("[autotrader] Page %d — found %d cards", pageNum, len(cards))

		for _, c := range cards {
			if c.URL == "" {
				continue
			}
			if !s.visitedURL.Add(c.URL) {
				s.logger.Debug("[autotrader] Skipping duplicate: %s", c.URL)
				continue
			}

			l := s.buildListing(c.Title, c.Price, c.Mileage, c.Specs, c.URL)
			if l == nil {
				continue
			}
			listings = append(listings, l)
		}

		nextURL = nextPageURL
		return nil
	})

	return listings, nextURL, err
}

// enrichListings visits detail pages for cards whose odometer did not render
// in the results list, which happens with sponsored placements.
func (s *Scraper) enrichListings(allocCtx context.Context, listings []*models.Listing) {
	for _, listing := range listings {
		l := listing
		if l.URL == "" || l.Mileage >= 0 {
			continue
		}

		s.pool.Submit(func() {
			km, loc, err := s.scrapeDetailPage(allocCtx, l.URL)
			if err != nil {
				s.logger.Warn("[autotrader] Detail page failed for %s: %v", l.URL, err)
				return
			}
			if km >= 0 {
				l.Mileage = km
			}
			if l.Location == "" {
				l.Location = loc
			}
			s.logger.Debug("[autotrader] Enriched: %s", l.Title)
		})
	}
	s.pool.Wait()
}

// scrapeDetailPage pulls odometer and location off a vehicle detail page.
func (s *Scraper) scrapeDetailPage(allocCtx context.Context, url string) (int, string, error) {
	mileage := -1
	location := ""

	err := s.retry.Do("detail-page", func() error {
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		type detailData struct {
			Odometer string `json:"odometer"`
			Location string `json:"location"`
		}

		var details detailData

		err := chromedp.Run(ctx,
			chromedp.Navigate(url),
			chromedp.Sleep(4*time.Second),

			chromedp.Evaluate(`
				(function() {
					var result = { odometer: '', location: '' };

					var specs = document.querySelectorAll('#sl-card-body li, .list-item');
					for (var i = 0; i < specs.length; i++) {
						var text = specs[i].innerText || '';
						if (!result.odometer && /km/i.test(text) && /\d/.test(text)) {
							result.odometer = text.trim();
						}
					}

					var locEl = document.querySelector('.dealer-location') ||
					            document.querySelector('[class*="location"]');
					if (locEl) result.location = locEl.innerText.trim();

					return result;
				})()
			`, &details),
		)

		if err != nil {
			return fmt.Errorf("chromedp detail extract: %w", err)
		}

		if km, ok := parser.ParseMileage(details.Odometer); ok {
			mileage = int(km)
		}
		location = details.Location
		return nil
	})

	return mileage, location, err
}

// buildListing turns one raw card into a Listing, reusing the marketplace
// field parsers since the text formats are the same.
func (s *Scraper) buildListing(title, rawPrice, rawMileage, specs, url string) *models.Listing {
	year, make, model := parser.ParseTitle(title)
	if year == 0 || make == "" || model == "" {
		s.logger.Debug("[autotrader] Could not parse title: %q", title)
		return nil
	}

	price, ok := parser.ParsePrice(rawPrice)
	if !ok || price <= 0 {
		s.logger.Debug("[autotrader] Could not parse price %q for %s", rawPrice, title)
		return nil
	}

	mileage := -1
	if km, ok := parser.ParseMileage(rawMileage); ok {
		mileage = int(km)
	}

	return &models.Listing{
		URL:      url,
		Title:    title,
		Year:     year,
		Make:     make,
		Model:    model,
		Price:    price,
		Mileage:  mileage,
		BodyType: extractBodyType(specs),
		Source:   source,
	}
}

var bodyTypes = []string{"sedan", "coupe", "hatchback", "suv", "truck", "van"}

func extractBodyType(specs string) string {
	for _, bt := range bodyTypes {
		if strings.Contains(specs, bt) {
			return bt
		}
	}
	return ""
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
