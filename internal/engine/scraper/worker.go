// Package scraper runs collection jobs with bounded concurrency and stores what they find.
package scraper

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"

	"github.com/rendis/leadtap/internal/engine/errs"
	"github.com/rendis/leadtap/internal/engine/geo"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/provider"
)

const progressTemplate = `{{counters . }} jobs {{bar . "[" "=" ">" " " "]"}} {{string . "found"}} found | {{string . "stored"}} stored | {{string . "errors"}} errors | {{etime . }}`

// Job is one provider run for one query.
type Job struct {
	Collector provider.Collector
	Query     model.ScrapeQuery
}

// Jobs pairs every collector with every query, queries first.
func Jobs(collectors []provider.Collector, queries []model.ScrapeQuery) []Job {
	jobs := make([]Job, 0, len(collectors)*len(queries))
	for _, q := range queries {
		for _, c := range collectors {
			jobs = append(jobs, Job{Collector: c, Query: q})
		}
	}
	return jobs
}

// Recorder persists records and reports how many were new.
type Recorder interface {
	InsertRecords(records []model.BusinessRecord) (int, error)
}

// RunOptions provides optional settings and callbacks for Run.
type RunOptions struct {
	Concurrency      int
	OperationTimeout time.Duration // per job; zero means no limit

	// OnRecords is called with every filtered batch, before it is stored.
	OnRecords func(job Job, records []model.BusinessRecord)
	// SuppressStderr disables the progress bar.
	SuppressStderr bool
	// Progress receives the progress bar; nil means stderr.
	Progress io.Writer
	// Stats allows passing an external Stats object for live progress tracking.
	// If nil, Run creates its own.
	Stats *model.Stats

	Area      geo.Area // zero keeps every record
	MinRating float64
	MaxRating float64

	LogInterval time.Duration
}

// Run executes jobs, at most Concurrency at a time. A job error is counted and
// logged; a fatal one (bad configuration, browser that cannot start, rejected
// credential) stops the remaining jobs and is returned.
func Run(ctx context.Context, jobs []Job, store Recorder, logger logrus.FieldLogger, opts *RunOptions) (*model.Stats, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	stats := opts.Stats
	if stats == nil {
		stats = &model.Stats{}
	}
	stats.JobsTotal = len(jobs)
	concurrency := max(opts.Concurrency, 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startTime := time.Now()
	done := make(chan struct{})
	var reporters sync.WaitGroup
	reporters.Add(1)
	go func() {
		defer reporters.Done()
		report(stats, logger, opts, startTime, done)
	}()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, concurrency)
		fatalMu  sync.Mutex
		fatalErr error
	)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := processJob(ctx, store, j, stats, logger, opts); err != nil && errs.Fatal(err) {
				fatalMu.Lock()
				if fatalErr == nil {
					fatalErr = err
					logger.WithError(err).Error("fatal job error, stopping scan")
				}
				fatalMu.Unlock()
				cancel()
			}
		}(job)
	}

	wg.Wait()
	close(done)
	reporters.Wait()

	if fatalErr != nil {
		return stats, fatalErr
	}
	return stats, context.Cause(ctx)
}

func processJob(ctx context.Context, store Recorder, job Job, stats *model.Stats, logger logrus.FieldLogger, opts *RunOptions) error {
	defer stats.JobsDone.Add(1)
	log := logger.WithFields(logrus.Fields{"provider": job.Collector.Name(), "query": job.Query.SearchText()})

	if opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	records, err := job.Collector.Collect(ctx, job.Query)
	if err != nil {
		stats.Errors.Add(1)
		log.WithFields(logrus.Fields{"kind": errs.KindOf(err).String(), "error": err}).Error("job failed")
		return err
	}
	found := len(records)

	records = geo.FilterRating(records, opts.MinRating, opts.MaxRating)
	records = geo.FilterRecords(records, opts.Area)

	if opts.OnRecords != nil && len(records) > 0 {
		opts.OnRecords(job, records)
	}

	stored := 0
	if store != nil && len(records) > 0 {
		stored, err = store.InsertRecords(records)
		if err != nil {
			stats.Errors.Add(1)
			log.WithError(err).Error("storing records failed")
		} else {
			stats.RecordsStored.Add(int64(stored))
		}
	}

	log.WithFields(logrus.Fields{
		"found":   found,
		"kept":    len(records),
		"stored":  stored,
		"elapsed": time.Since(start).Truncate(time.Millisecond),
	}).Info("job finished")
	return nil
}

// report drives the progress bar and the periodic progress log line until done closes.
func report(stats *model.Stats, logger logrus.FieldLogger, opts *RunOptions, startTime time.Time, done <-chan struct{}) {
	interval := opts.LogInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logTicker := time.NewTicker(interval)
	defer logTicker.Stop()

	var bar *pb.ProgressBar
	if !opts.SuppressStderr {
		w := opts.Progress
		if w == nil {
			w = os.Stderr
		}
		bar = pb.New(stats.JobsTotal).SetTemplateString(progressTemplate).SetWriter(w).SetRefreshRate(time.Second)
		bar.Start()
	}
	update := func() {
		if bar == nil {
			return
		}
		bar.SetCurrent(stats.JobsDone.Load())
		bar.Set("found", strconv.FormatInt(stats.RecordsFound.Load(), 10))
		bar.Set("stored", strconv.FormatInt(stats.RecordsStored.Load(), 10))
		bar.Set("errors", strconv.FormatInt(stats.Errors.Load(), 10))
	}
	update()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			update()
		case <-logTicker.C:
			logger.WithFields(progressFields(stats, startTime)).Info("progress")
		case <-done:
			update()
			if bar != nil {
				bar.Finish()
			}
			logger.WithFields(progressFields(stats, startTime)).Info("scan finished")
			return
		}
	}
}

func progressFields(stats *model.Stats, startTime time.Time) logrus.Fields {
	return logrus.Fields{
		"jobs":       strconv.FormatInt(stats.JobsDone.Load(), 10) + "/" + strconv.Itoa(stats.JobsTotal),
		"candidates": stats.Candidates.Load(),
		"found":      stats.RecordsFound.Load(),
		"stored":     stats.RecordsStored.Load(),
		"skipped":    stats.Skipped.Load(),
		"blocked":    stats.Blocked.Load(),
		"errors":     stats.Errors.Load(),
		"elapsed":    time.Since(startTime).Truncate(time.Second),
	}
}
