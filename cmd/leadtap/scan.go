package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/engine/scraper"
	"github.com/rendis/leadtap/internal/engine/storage"
	"github.com/rendis/leadtap/internal/logging"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider/registry"
	"github.com/rendis/leadtap/internal/tui"
	"github.com/rendis/leadtap/internal/tui/views"
)

type scanFlags struct {
	providers  string
	queries    string
	location   string
	limit      int
	fromPage   int
	toPage     int
	configPath string
	envPath    string
	outputDir  string
	minRating  float64
	maxRating  float64
	area       bool
	radius     float64
	useTUI     bool
}

func runScan(args []string) error {
	var f scanFlags

	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	fs.StringVar(&f.providers, "provider", "maps", "Comma-separated providers: "+strings.Join(registry.Names(), ", "))
	fs.StringVar(&f.queries, "query", "", "Comma-separated search terms (required)")
	fs.StringVar(&f.location, "location", "", "Location appended to every term")
	fs.IntVar(&f.limit, "limit", 0, "Max records per provider and term (0 = no limit)")
	fs.IntVar(&f.fromPage, "from-page", 1, "First list page for paginated providers")
	fs.IntVar(&f.toPage, "to-page", 1, "Last list page for paginated providers")
	fs.StringVar(&f.configPath, "config", "", "YAML config file (default: built-in settings)")
	fs.StringVar(&f.envPath, "env", ".env", "Env file to load before reading the config")
	fs.StringVar(&f.outputDir, "output", "", "Output directory for the database and log (required)")
	fs.Float64Var(&f.minRating, "min-rating", 0, "Minimum star rating filter")
	fs.Float64Var(&f.maxRating, "max-rating", 0, "Maximum star rating filter")
	fs.BoolVar(&f.area, "area", false, "Drop records outside the geocoded location")
	fs.Float64Var(&f.radius, "radius", 0, "Keep records within this many km of the location center (implies -area)")
	fs.BoolVar(&f.useTUI, "tui", false, "Show live progress and browse results in the terminal")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap scan [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadtap scan -query dentists -location \"Austin, TX\" -output ./leads\n")
		fmt.Fprintf(os.Stderr, "  leadtap scan -provider maps,yelp -query \"cafes,bars\" -location Madrid -radius 5 -limit 50 -output ./leads\n")
		fmt.Fprintf(os.Stderr, "  leadtap scan -provider reviews -query plumbers -from-page 1 -to-page 3 -tui -output ./leads\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	terms := splitList(f.queries)
	if len(terms) == 0 {
		return errors.New("-query is required")
	}
	if f.outputDir == "" {
		return errors.New("-output is required")
	}
	if (f.area || f.radius > 0) && strings.TrimSpace(f.location) == "" {
		return errors.New("-area and -radius need -location")
	}

	queries := make([]model.ScrapeQuery, 0, len(terms))
	for _, t := range terms {
		q := model.ScrapeQuery{
			Term:      t,
			Location:  strings.TrimSpace(f.location),
			Limit:     f.limit,
			PageRange: model.PageRange{From: f.fromPage, To: f.toPage},
		}
		if err := q.Validate(); err != nil {
			return err
		}
		queries = append(queries, q)
	}

	cfg, err := loadConfig(f.configPath, f.envPath)
	if err != nil {
		return err
	}

	dbPath, logPath, err := outputPaths(f.outputDir, "leadtap")
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.NewFile(cfg.Logging, logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	if !f.useTUI {
		fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)
	}

	ctx, cancel := signalContext(f.useTUI)
	defer cancel()

	stats := &model.Stats{}
	env := newEnv(cfg, stats, logger)
	collectors, err := registry.Parse(f.providers, env)
	if err != nil {
		return err
	}
	names := make([]string, len(collectors))
	for i, c := range collectors {
		names[i] = c.Name()
	}

	var area geo.Area
	if f.area || f.radius > 0 {
		area = resolveArea(ctx, f.location, f.radius, logger, !f.useTUI)
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	jobs := scraper.Jobs(collectors, queries)
	logger.WithFields(logrus.Fields{
		"providers":   names,
		"terms":       terms,
		"location":    f.location,
		"limit":       f.limit,
		"jobs":        len(jobs),
		"concurrency": cfg.Concurrency,
		"run_id":      store.RunID(),
	}).Info("session start")

	opts := &scraper.RunOptions{
		Concurrency:      cfg.Concurrency,
		OperationTimeout: cfg.OperationTimeout.Duration,
		Stats:            stats,
		Area:             area,
		MinRating:        f.minRating,
		MaxRating:        f.maxRating,
		SuppressStderr:   f.useTUI,
	}

	startTime := time.Now()
	if f.useTUI {
		err = scanTUI(ctx, jobs, store, logger, opts, dbPath, strings.Join(terms, ", "))
	} else {
		fmt.Fprintf(os.Stderr, "Scraping: %d terms x %d providers = %d jobs (concurrency=%d)\n",
			len(terms), len(collectors), len(jobs), cfg.Concurrency)
		_, err = scraper.Run(ctx, jobs, store, logger, opts)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scraping: %w", err)
	}

	total, _ := store.Count()
	logger.WithFields(logrus.Fields{
		"found":       stats.RecordsFound.Load(),
		"stored":      stats.RecordsStored.Load(),
		"errors":      stats.Errors.Load(),
		"blocked":     stats.Blocked.Load(),
		"total_in_db": total,
	}).Info("done")

	if f.useTUI {
		return nil
	}
	where := f.location
	if where == "" {
		where = "-"
	}
	summary("LeadTap Complete", [][2]string{
		{"Query", strings.Join(terms, ", ")},
		{"Location", where},
		{"Providers", strings.Join(names, ", ")},
		{"Jobs", fmt.Sprint(len(jobs))},
		{"Found", fmt.Sprint(stats.RecordsFound.Load())},
		{"Stored", fmt.Sprintf("%d (unique)", total)},
		{"Blocked", fmt.Sprint(stats.Blocked.Load())},
		{"Errors", fmt.Sprint(stats.Errors.Load())},
		{"Duration", time.Since(startTime).Truncate(time.Second).String()},
		{"Database", dbPath},
		{"Log", logPath},
	})
	return nil
}

// scanTUI runs the scan behind the progress view. It returns once the view
// is closed and the scan has wound down, so the store can be closed safely.
func scanTUI(ctx context.Context, jobs []scraper.Job, store scraper.Recorder, logger logrus.FieldLogger, opts *scraper.RunOptions, dbPath, title string) error {
	var running sync.WaitGroup
	running.Add(1)
	started := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(running.Done) }

	scan := views.Scan{
		Title:  title,
		DBPath: dbPath,
		Stats:  opts.Stats,
		Start: func(tctx context.Context, stats *model.Stats) error {
			defer release()
			close(started)
			runCtx, stop := context.WithCancel(tctx)
			defer stop()
			go func() {
				select {
				case <-ctx.Done():
					stop()
				case <-runCtx.Done():
				}
			}()
			o := *opts
			o.Stats = stats
			_, err := scraper.Run(runCtx, jobs, store, logger, &o)
			return err
		},
	}
	err := tui.Run(scan)
	select {
	case <-started:
	default:
		release()
	}
	running.Wait()
	return err
}

// resolveArea geocodes location. A failed lookup only disables the area filter.
func resolveArea(ctx context.Context, location string, radiusKm float64, logger logrus.FieldLogger, verbose bool) geo.Area {
	place, err := geo.NewGeocoder().Geocode(ctx, location)
	if err != nil {
		logger.WithError(err).WithField("location", location).Warn("geocoding failed, area filter disabled")
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: could not geocode %q, keeping records from everywhere\n", location)
		}
		return geo.Area{}
	}
	logger.WithFields(logrus.Fields{"place": place.Name, "radius_km": radiusKm}).Info("area filter")
	if verbose {
		if radiusKm > 0 {
			fmt.Fprintf(os.Stderr, "Area: %.1fkm around %s\n", radiusKm, place.Name)
		} else {
			fmt.Fprintf(os.Stderr, "Area: %s\n", place.Name)
		}
	}
	return geo.AroundPlace(place, radiusKm)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
