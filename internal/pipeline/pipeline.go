// Package pipeline implements the ingest conductor: it drives discovery,
// deduplicates within a run, batches and commits items transactionally, and
// carries a resume token forward across runs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/httpx"
	"github.com/opendatacatalog/catalogsync/internal/model"
	"github.com/opendatacatalog/catalogsync/internal/observability"
	"github.com/opendatacatalog/catalogsync/internal/repository"
)

// Config is one run's configuration. Name identifies the resume-state row;
// distinct pipelines (e.g. one per region grouping) use distinct names.
type Config struct {
	Name          string
	Regions       []model.Region
	PageSize      int
	Limit         int
	DryRun        bool
	ResumeEnabled bool
	BatchSize     int
	RetryConfig   httpx.RetryConfig

	Discoverer adapter.Discoverer
	Repository repository.Repository
	Logger     observability.Logger
	Metrics    observability.Metrics
	Now        func() time.Time
	Sleeper    httpx.Sleeper
}

// withDefaults fills in unset ambient fields without altering caller-set
// validation-relevant fields (Regions/PageSize/Limit are never defaulted;
// their absence is a configuration error).
func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.RetryConfig == (httpx.RetryConfig{}) {
		c.RetryConfig = httpx.DefaultRetryConfig()
	}
	if c.Logger == nil {
		c.Logger = observability.NewNoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NewNoopMetrics()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleeper == nil {
		c.Sleeper = httpx.RealSleeper
	}
	return c
}

// Validate checks the parts of Config the state machine requires before a
// run can start.
func (c Config) Validate() error {
	if len(c.Regions) == 0 {
		return adapter.NewConfigError("regions must be non-empty")
	}
	for _, r := range c.Regions {
		if !r.Valid() {
			return adapter.NewConfigError(fmt.Sprintf("unknown region %q", r))
		}
	}
	if c.PageSize <= 0 {
		return adapter.NewConfigError("pageSize must be a positive integer")
	}
	if c.Limit <= 0 {
		return adapter.NewConfigError("limit must be a positive integer")
	}
	if c.BatchSize < 1 {
		return adapter.NewConfigError("batchSize must be at least 1")
	}
	if c.Discoverer == nil {
		return adapter.NewConfigError("discoverer must be set")
	}
	if c.Repository == nil {
		return adapter.NewConfigError("repository must be set")
	}
	return nil
}

// Result is the summary a completed or aborted run returns.
type Result struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	PlannedRegions   []model.Region
	PlannedPageSize  int
	PlannedLimit     int
	DryRun           bool
	ResumeFrom       *string
	TotalProcessed   int
	LastCursor       string
	CompletedRegions []model.Region
}

// resumeToken is the opaque JSON payload stored in ResumeState.ResumeToken.
type resumeToken struct {
	Region    model.Region `json:"region"`
	Cursor    string       `json:"cursor"`
	Processed int          `json:"processed"`
}

// Run executes one pass of the state machine: validate, load resume state,
// iterate discovery with deduplication, accumulate and commit batches, and
// report a summary. Errors are always one of the adapter package's typed
// errors.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &runner{cfg: cfg, seen: make(map[string]bool)}
	return r.run(ctx)
}

type runner struct {
	cfg Config

	seen                map[string]bool
	cumulativeProcessed int
	lastCursor          string
	resumeFrom          *string
	pendingBatch        []model.CatalogItem
	pendingRegion       model.Region
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	startedAt := r.cfg.Now()
	result := &Result{
		StartedAt:       startedAt,
		PlannedRegions:  r.cfg.Regions,
		PlannedPageSize: r.cfg.PageSize,
		PlannedLimit:    r.cfg.Limit,
		DryRun:          r.cfg.DryRun,
	}

	alreadyProcessed := 0
	if r.cfg.ResumeEnabled && !r.cfg.DryRun {
		n, err := r.loadResume(ctx)
		if err != nil {
			return nil, err
		}
		alreadyProcessed = n
	}
	r.cumulativeProcessed = alreadyProcessed

	remaining := r.cfg.Limit - alreadyProcessed
	var completedRegions []model.Region

regionLoop:
	for _, region := range r.cfg.Regions {
		if remaining <= 0 {
			break
		}
		exhausted, err := r.runRegion(ctx, region, remaining)
		remaining = r.cfg.Limit - r.cumulativeProcessed
		if err != nil {
			result.FinishedAt = r.cfg.Now()
			result.TotalProcessed = r.cumulativeProcessed
			result.LastCursor = r.lastCursor
			result.ResumeFrom = r.resumeFrom
			result.CompletedRegions = completedRegions
			return result, err
		}
		if exhausted {
			completedRegions = append(completedRegions, region)
		}
		if ctx.Err() != nil {
			break regionLoop
		}
	}

	if !r.cfg.DryRun && len(r.pendingBatch) > 0 {
		if err := r.commitBatch(ctx, r.pendingRegion); err != nil {
			result.FinishedAt = r.cfg.Now()
			result.TotalProcessed = r.cumulativeProcessed
			result.LastCursor = r.lastCursor
			result.ResumeFrom = r.resumeFrom
			result.CompletedRegions = completedRegions
			return result, err
		}
	}

	result.FinishedAt = r.cfg.Now()
	result.TotalProcessed = r.cumulativeProcessed
	result.LastCursor = r.lastCursor
	result.ResumeFrom = r.resumeFrom
	result.CompletedRegions = completedRegions

	durationMs := float64(result.FinishedAt.Sub(result.StartedAt).Milliseconds())
	r.cfg.Metrics.Gauge("pipeline_duration_ms", durationMs, observability.Tags{
		"regions":  regionsTag(r.cfg.Regions),
		"dry_run":  boolTag(r.cfg.DryRun),
	})

	return result, nil
}

func regionsTag(regions []model.Region) string {
	s := ""
	for i, r := range regions {
		if i > 0 {
			s += ","
		}
		s += string(r)
	}
	return s
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// loadResume reads and parses the stored resume token, returning the
// already-processed count it carries.
func (r *runner) loadResume(ctx context.Context) (int, error) {
	state, err := r.cfg.Repository.LoadResumeState(ctx, r.cfg.Name)
	if err != nil {
		return 0, &adapter.PersistenceError{Op: "load resume state", Cause: err}
	}
	if state == nil {
		return 0, nil
	}

	var token resumeToken
	if err := json.Unmarshal([]byte(state.ResumeToken), &token); err != nil {
		return 0, adapter.WrapConfigError("Invalid resumeFrom format", err)
	}

	tokenCopy := state.ResumeToken
	r.resumeFrom = &tokenCopy
	r.lastCursor = state.ResumeToken

	r.cfg.Logger.Info("Resume from token", observability.Fields{
		"pipeline":           r.cfg.Name,
		"last_processed_at":  state.LastProcessedAt,
		"token_length":       len(state.ResumeToken),
	})
	r.cfg.Metrics.Increment("resume_restarts_total", 1, nil)
	r.cfg.Logger.Info("Resume operation", observability.Fields{
		"region":    token.Region,
		"processed": token.Processed,
	})

	return token.Processed, nil
}

// runRegion drives discovery for one region up to budget unique items,
// returning whether the region's iterator was exhausted (vs. stopped early
// because the budget ran out).
func (r *runner) runRegion(ctx context.Context, region model.Region, budget int) (bool, error) {
	attempt := 0
	for {
		attempt++
		it, err := r.cfg.Discoverer.Discover(ctx, region, budget)
		if err == nil {
			exhausted, iterErr := r.drainIterator(ctx, it, region, budget)
			if iterErr == nil {
				return exhausted, nil
			}
			err = iterErr
		}

		if classifyFatal(err) {
			r.cfg.Logger.Error("Fatal error encountered", observability.Fields{
				"error_type": "FATAL",
				"error":      err.Error(),
				"attempt":    attempt,
			})
			return false, err
		}

		if attempt > r.cfg.RetryConfig.MaxAttempts {
			r.cfg.Logger.Error("Retry exhausted", observability.Fields{
				"error_type":     "TRANSIENT",
				"total_attempts": attempt,
				"final_error":    err.Error(),
			})
			return false, &adapter.RetryExhausted{Attempts: attempt, Cause: err}
		}

		delay := backoffDelay(r.cfg.RetryConfig, attempt)
		if sleepErr := r.cfg.Sleeper.Sleep(ctx, delay); sleepErr != nil {
			return false, &adapter.CancellationError{Cause: sleepErr}
		}
	}
}

// classifyFatal reports whether err should abort the run immediately
// (FATAL) rather than be retried (TRANSIENT).
func classifyFatal(err error) bool {
	var transient *adapter.TransientHTTPError
	var exhausted *adapter.RetryExhausted
	if errors.As(err, &transient) || errors.As(err, &exhausted) {
		return false
	}
	return true
}

func backoffDelay(cfg httpx.RetryConfig, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	delay := base * time.Duration(1<<uint(attempt))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// drainIterator pulls items from it until exhaustion, budget, or error,
// deduplicating and accumulating into batches as it goes.
func (r *runner) drainIterator(ctx context.Context, it adapter.CatalogItemIterator, region model.Region, budget int) (bool, error) {
	taken := 0
	for taken < budget {
		item, ok, err := it.Next(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}

		key := item.Key()
		if r.seen[key] {
			r.cfg.Metrics.Increment("duplicates_skipped_total", 1, observability.Tags{"region": string(region)})
			r.cfg.Logger.Debug("Duplicate item skipped", observability.Fields{"key": key, "region": region})
			continue
		}
		r.seen[key] = true
		taken++

		if r.cfg.DryRun {
			r.cumulativeProcessed++
			continue
		}

		r.pendingBatch = append(r.pendingBatch, *item)
		r.pendingRegion = region
		if len(r.pendingBatch) >= r.cfg.BatchSize {
			if err := r.commitBatch(ctx, region); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// commitBatch flushes the pending batch through the repository in a single
// transaction, advancing the resume token only on success.
func (r *runner) commitBatch(ctx context.Context, region model.Region) error {
	batch := r.pendingBatch
	r.pendingBatch = nil

	newTotal := r.cumulativeProcessed + len(batch)
	token := resumeToken{Region: region, Cursor: fmt.Sprintf("processed:%d", newTotal), Processed: newTotal}
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return adapter.WrapConfigError("failed to encode resume token", err)
	}

	now := r.cfg.Now()
	start := now
	commitErr := r.cfg.Repository.ProcessItemBatch(ctx, r.cfg.Name, batch, string(tokenJSON), now)
	durationMs := float64(r.cfg.Now().Sub(start).Milliseconds())

	if commitErr != nil {
		r.cfg.Logger.Error("Batch rollback", observability.Fields{
			"batch_size":        len(batch),
			"duration_ms":       durationMs,
			"error_message":     commitErr.Error(),
			"resume_preserved":  true,
		})
		return &adapter.PersistenceError{Op: "process item batch", Cause: commitErr}
	}

	r.cumulativeProcessed = newTotal
	r.lastCursor = string(tokenJSON)
	tokenCopy := string(tokenJSON)
	r.resumeFrom = &tokenCopy

	r.cfg.Metrics.Increment("batches_total", 1, observability.Tags{"region": string(region)})
	r.cfg.Metrics.Increment("items_total", float64(len(batch)), observability.Tags{"region": string(region)})
	r.cfg.Metrics.Timing("batch_duration_ms", durationMs, observability.Tags{"region": string(region)})
	r.cfg.Logger.Info("Batch processed", observability.Fields{
		"batch_size":             len(batch),
		"items_total":            r.cumulativeProcessed,
		"duration_ms":            durationMs,
		"resume_token_advanced":  true,
	})
	return nil
}
