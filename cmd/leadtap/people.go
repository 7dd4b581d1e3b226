package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/config"
	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/storage"
	"github.com/rendis/leadtap/internal/logging"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider/people"
)

func runPeople(args []string) error {
	var q model.PeopleQuery
	var configPath, envPath, outputDir string

	fs := flag.NewFlagSet("people", flag.ExitOnError)
	fs.StringVar(&q.Title, "title", "", "Job title to search for")
	fs.StringVar(&q.Location, "location", "", "Location to search in")
	fs.IntVar(&q.Limit, "limit", 25, "Max profiles to collect (0 = no limit)")
	fs.StringVar(&configPath, "config", "", "YAML config file (default: built-in settings)")
	fs.StringVar(&envPath, "env", ".env", "Env file to load before reading the config")
	fs.StringVar(&outputDir, "output", "", "Output directory for the database and log (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: leadtap people [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nThe session cookie is read from %s (or the -env file).\n", config.PeopleCookieEnv)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  leadtap people -title CTO -location Berlin -limit 50 -output ./leads\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if q.Title == "" && q.Location == "" {
		return errors.New("-title or -location is required")
	}
	if outputDir == "" {
		return errors.New("-output is required")
	}

	cfg, err := loadConfig(configPath, envPath)
	if err != nil {
		return err
	}
	q.Credential = config.PeopleCookie()
	if q.Credential == "" {
		return fmt.Errorf("%s is not set", config.PeopleCookieEnv)
	}

	dbPath, logPath, err := outputPaths(outputDir, "leadtap_people")
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.NewFile(cfg.Logging, logPath)
	if err != nil {
		return err
	}
	defer closeLog()
	fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)

	ctx, cancel := signalContext(false)
	defer cancel()
	if d := cfg.OperationTimeout.Duration; d > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, d)
		defer stop()
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	stats := &model.Stats{JobsTotal: 1}
	startTime := time.Now()
	logger.WithFields(logrus.Fields{"title": q.Title, "location": q.Location, "limit": q.Limit}).Info("people search start")

	profiles, err := people.New(newEnv(cfg, stats, logger)).Collect(ctx, q)
	stats.JobsDone.Add(1)
	if err != nil {
		logger.WithFields(logrus.Fields{"kind": errs.KindOf(err).String(), "error": err}).Error("people search failed")
		if errs.Is(err, errs.InvalidCredential) {
			return fmt.Errorf("session cookie rejected, refresh %s: %w", config.PeopleCookieEnv, err)
		}
		return err
	}

	stored, err := store.InsertProfiles(profiles)
	if err != nil {
		return fmt.Errorf("storing profiles: %w", err)
	}
	logger.WithFields(logrus.Fields{"found": len(profiles), "stored": stored}).Info("people search finished")

	summary("LeadTap People Complete", [][2]string{
		{"Title", q.Title},
		{"Location", q.Location},
		{"Found", fmt.Sprint(len(profiles))},
		{"Stored", fmt.Sprintf("%d (unique)", stored)},
		{"Blocked", fmt.Sprint(stats.Blocked.Load())},
		{"Duration", time.Since(startTime).Truncate(time.Second).String()},
		{"Database", dbPath},
		{"Log", logPath},
	})
	return nil
}
