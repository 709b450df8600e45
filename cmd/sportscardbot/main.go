// Command sportscardbot searches card marketplaces for listings priced
// below their recent sold comparables and reports them as CSV.
//
// Credentials come from the environment (or a .env file):
//
//	EBAY_APP_ID            eBay Finding API application ID
//	SPORTSCARDPRO_API_KEY  SportsCardsPro API token
//
// Without credentials the HTML scraper is the only source.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gopforever/sportscardbot/internal/analysis"
	"github.com/gopforever/sportscardbot/internal/cache"
	"github.com/gopforever/sportscardbot/internal/cardpro"
	"github.com/gopforever/sportscardbot/internal/ebay"
	"github.com/gopforever/sportscardbot/internal/model"
	"github.com/gopforever/sportscardbot/internal/pipeline"
	"github.com/gopforever/sportscardbot/internal/provider"
	"github.com/gopforever/sportscardbot/internal/ratelimit"
	"github.com/gopforever/sportscardbot/internal/refresh"
	"github.com/gopforever/sportscardbot/internal/report"
	"github.com/gopforever/sportscardbot/internal/scrape"
)

func main() {
	_ = godotenv.Load()

	var (
		query      = flag.String("query", "", "search keywords for a single run")
		keywords   = flag.String("keywords", "", "comma-separated keywords for a batch run")
		minPrice   = flag.Float64("min-price", 0, "ignore listings below this price")
		maxPrice   = flag.Float64("max-price", 0, "ignore listings above this price (0 = no cap)")
		maxResults = flag.Int("max-results", 50, "listings to fetch per provider")
		soldDays   = flag.Int("sold-days", 30, "sold comparable lookback window in days")
		discount   = flag.Float64("discount", 20, "minimum discount percent to report")
		minComps   = flag.Int("min-comps", 5, "minimum sold comparables for an estimate")
		cachePath  = flag.String("cache", defaultCachePath(), "response cache file, empty for in-memory")
		outPath    = flag.String("out", "", "CSV output file, default stdout")
		schedule   = flag.String("refresh", "", "run as a cache-warming daemon on this cron schedule")
		noScrape   = flag.Bool("no-scrape", false, "disable the HTML scraper source")
		timeout    = flag.Duration("timeout", 2*time.Minute, "fetch budget per provider per query")
		debug      = flag.Bool("debug", false, "verbose request logging")
	)
	flag.Parse()

	kws := keywordList(*keywords, *query)
	if len(kws) == 0 {
		fmt.Fprintln(os.Stderr, `usage: sportscardbot -query "1986 fleer jordan psa 8" [-out deals.csv]`)
		flag.PrintDefaults()
		os.Exit(2)
	}

	c, err := cache.New(*cachePath)
	if err != nil {
		// Run without caching rather than refuse to run
		log.Printf("cache disabled: %v", err)
		c = nil
	}

	sources := buildSources(c, *noScrape, *debug)
	if len(sources) == 0 {
		log.Fatal("no sources configured: set EBAY_APP_ID or SPORTSCARDPRO_API_KEY, or drop -no-scrape")
	}

	cfg := analysis.DefaultConfig()
	cfg.DiscountThreshold = *discount
	cfg.MinSoldSamples = *minComps
	cfg.SoldDays = *soldDays
	cfg.MinPrice = *minPrice
	cfg.MaxPrice = *maxPrice

	engine := pipeline.New(sources, cfg)
	engine.SetTimeout(*timeout)

	base := model.SearchQuery{
		MinPrice:   *minPrice,
		MaxPrice:   *maxPrice,
		MaxResults: *maxResults,
		SoldDays:   *soldDays,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *schedule != "" {
		runDaemon(ctx, engine, kws, base, *schedule)
		return
	}

	if err := runSearch(ctx, engine, kws, base, *outPath); err != nil {
		log.Fatal(err)
	}
}

// buildSources wires up every provider that has what it needs to run.
func buildSources(c *cache.Cache, noScrape, debug bool) []provider.Source {
	limits := ratelimit.NewRegistry(30)
	limits.SetLimit("ebay", 50)
	limits.SetLimit("cardpro", 60)

	var sources []provider.Source
	if appID := os.Getenv("EBAY_APP_ID"); appID != "" {
		eb := ebay.New(appID, c, limits.Limiter("ebay"))
		eb.SetDebug(debug)
		sources = append(sources, eb)
	}
	if token := os.Getenv("SPORTSCARDPRO_API_KEY"); token != "" {
		cp := cardpro.New(token, c, limits.Limiter("cardpro"))
		cp.SetDebug(debug)
		sources = append(sources, cp)
	}
	if !noScrape {
		sc := scrape.New(c)
		sc.SetDebug(debug)
		sources = append(sources, sc)
	}

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name()
	}
	log.Printf("sources: %s", strings.Join(names, ", "))
	return sources
}

func runSearch(ctx context.Context, engine *pipeline.Engine, kws []string, base model.SearchQuery, outPath string) error {
	results, err := engine.AnalyzeKeywords(ctx, kws, base)
	if err != nil {
		return err
	}

	var opps []model.Opportunity
	for _, res := range results {
		for _, f := range res.Failures {
			log.Printf("%q: %s: %v", res.Query.Keywords, f.Provider, f.Err)
		}
		if len(res.Opportunities) == 0 {
			log.Printf("%q: %d active / %d sold listings, no deals",
				res.Query.Keywords, res.ActiveCount, res.SoldCount)
		}
		opps = append(opps, res.Opportunities...)
	}

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := report.WriteCSV(out, opps); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return report.WriteSummary(os.Stderr, analysis.Summarize(opps))
}

func runDaemon(ctx context.Context, engine *pipeline.Engine, kws []string, base model.SearchQuery, schedule string) {
	svc := refresh.New(engine, kws, base)
	svc.SetSchedule(schedule)
	if err := svc.Start(ctx); err != nil {
		log.Fatal(err)
	}
	<-ctx.Done()
	svc.Stop()
	log.Print("refresh daemon stopped")
}

func keywordList(batch, single string) []string {
	var kws []string
	for _, kw := range strings.Split(batch, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	if single = strings.TrimSpace(single); single != "" {
		kws = append(kws, single)
	}
	return kws
}

func defaultCachePath() string {
	return filepath.Join(os.TempDir(), "sportscardbot_cache.json")
}
