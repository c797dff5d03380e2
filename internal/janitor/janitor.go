package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/subrender/internal/renderjobs"
	"github.com/MimeLyc/subrender/pkg/file"
	"github.com/MimeLyc/subrender/pkg/icron"
	"github.com/MimeLyc/subrender/pkg/log"
)

// Registry is the set of live render jobs.
type Registry interface {
	List() []renderjobs.Summary
	ArtifactPaths() map[string]struct{}
}

// CacheSweeper drops expired cached translations.
type CacheSweeper interface {
	DeleteExpiredCaptionCache(ctx context.Context, now time.Time) (int64, error)
}

// Result summarises one sweep.
type Result struct {
	Evicted        int       `json:"evicted"`
	OrphansRemoved int       `json:"orphans_removed"`
	BytesFreed     int64     `json:"bytes_freed"`
	CacheRemoved   int64     `json:"cache_removed"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Status is what the health endpoint reports about the janitor.
type Status struct {
	CronExpr  string    `json:"cron_expr"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	Last      *Result   `json:"last_result,omitempty"`
	DiskUsage int64     `json:"disk_usage"`
}

type Options struct {
	Dir      string
	Grace    time.Duration
	CronExpr string
	Registry Registry
	Cache    CacheSweeper
}

// Janitor periodically removes render artifacts that no live job owns.
// Timers normally delete artifacts; the janitor catches files left behind by
// crashes, failed registrations, or lost timers.
type Janitor struct {
	dir      string
	grace    time.Duration
	registry Registry
	cache    CacheSweeper
	now      func() time.Time
	remove   func(string) error

	sf   singleflight.Group
	cron *cron.Cron

	mu       sync.Mutex
	cronExpr string
	entryID  cron.EntryID
	lastRun  time.Time
	last     *Result
}

func New(opts Options) *Janitor {
	grace := opts.Grace
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	cronExpr := opts.CronExpr
	if cronExpr == "" {
		cronExpr = "@every 10m"
	}
	return &Janitor{
		dir:      opts.Dir,
		grace:    grace,
		registry: opts.Registry,
		cache:    opts.Cache,
		now:      time.Now,
		remove:   os.Remove,
		cron:     cron.New(),
		cronExpr: cronExpr,
	}
}

// Start schedules sweeps and starts the cron runner.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	expr := j.cronExpr
	j.mu.Unlock()
	if err := j.schedule(ctx, expr); err != nil {
		return err
	}
	j.cron.Start()
	log.Info("Janitor scheduled with %q over %s", expr, j.dir)
	return nil
}

// Stop halts scheduling and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Reschedule swaps the cron expression of a running janitor.
func (j *Janitor) Reschedule(ctx context.Context, cronExpr string) error {
	j.mu.Lock()
	current := j.cronExpr
	j.mu.Unlock()
	if cronExpr == current {
		return nil
	}
	if err := j.schedule(ctx, cronExpr); err != nil {
		return err
	}
	log.Info("Janitor rescheduled to %q", cronExpr)
	return nil
}

func (j *Janitor) schedule(ctx context.Context, cronExpr string) error {
	if _, err := icron.Parse(cronExpr); err != nil {
		return err
	}
	id, err := j.cron.AddFunc(cronExpr, func() {
		if _, err := j.Sweep(ctx); err != nil {
			log.Error("Janitor sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	j.mu.Lock()
	prev := j.entryID
	j.entryID = id
	j.cronExpr = cronExpr
	j.mu.Unlock()
	if prev != 0 {
		j.cron.Remove(prev)
	}
	return nil
}

// Sweep runs one cleanup pass. Concurrent callers share a single pass.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	v, err, shared := j.sf.Do("sweep", func() (any, error) {
		return j.sweep(ctx)
	})
	if shared {
		log.Debug("Janitor sweep joined an in-flight pass")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (j *Janitor) sweep(ctx context.Context) (Result, error) {
	var res Result

	// Listing evicts expired jobs whose timers never fired.
	before := len(j.registry.ArtifactPaths())
	j.registry.List()
	owned := j.registry.ArtifactPaths()
	res.Evicted = max(before-len(owned), 0)

	candidates, err := file.FindOlderThan(j.dir, j.now().Add(-j.grace))
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", j.dir, err)
	}
	for _, path := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := owned[path]; ok {
			continue
		}
		info, statErr := os.Stat(path)
		if err := j.remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("Janitor could not remove %s: %v", path, err)
			}
			continue
		}
		res.OrphansRemoved++
		if statErr == nil {
			res.BytesFreed += info.Size()
		}
	}

	if j.cache != nil {
		n, err := j.cache.DeleteExpiredCaptionCache(ctx, j.now())
		if err != nil {
			log.Warn("Janitor cache sweep failed: %v", err)
		}
		res.CacheRemoved = n
	}

	res.FinishedAt = j.now()
	j.mu.Lock()
	j.lastRun = res.FinishedAt
	last := res
	j.last = &last
	j.mu.Unlock()

	if res.OrphansRemoved > 0 || res.Evicted > 0 || res.CacheRemoved > 0 {
		log.Info("Janitor removed %d orphans (%s), evicted %d jobs, dropped %d cache rows",
			res.OrphansRemoved, humanize.Bytes(uint64(res.BytesFreed)), res.Evicted, res.CacheRemoved)
	}
	return res, nil
}

func (j *Janitor) Status() Status {
	j.mu.Lock()
	st := Status{CronExpr: j.cronExpr, LastRun: j.lastRun, Last: j.last}
	j.mu.Unlock()

	if info, err := icron.GetTriggerInfo(st.CronExpr, j.now(), st.LastRun); err == nil {
		st.NextRun = info.Next
	}
	if size, err := file.DirSize(j.dir); err == nil {
		st.DiskUsage = size
	}
	return st
}
