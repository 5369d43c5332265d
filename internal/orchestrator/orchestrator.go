// Package orchestrator sequences one crawl run: a single search, per-note
// normalization with pacing, optional comment retrieval and the final
// aggregation, reporting lifecycle events along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/normalize"
	"github.com/JunJD/xiuer-spider/internal/pacing"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// Config holds the run behavior that does not vary per request.
type Config struct {
	// NotePacing bounds the delay before each note request.
	NotePacing pacing.Config
	// CommentPacing bounds the shorter delay before each comment request.
	CommentPacing pacing.Config
	// FetchDetail enriches each note with its detail card.
	FetchDetail bool
}

// Request describes one run.
type Request struct {
	// RunID is generated when empty.
	RunID       string
	TaskID      string
	Query       string
	Count       int
	SortMode    crawler.SortMode
	Credential  crawler.Credential
	GetComments bool
	// NoDelay disables pacing for this run.
	NoDelay bool
	// Sink receives this run's events in addition to the shared sinks.
	Sink progress.Sink
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query is required")
	}
	if r.Count <= 0 {
		return fmt.Errorf("count must be > 0, got %d", r.Count)
	}
	if !r.SortMode.Valid() {
		return fmt.Errorf("unknown sort mode %d", int(r.SortMode))
	}
	return nil
}

// Result is the outcome handed back to the caller. Success is false only
// for failed runs; completed-with-errors is still a success.
type Result struct {
	Success  bool
	RunID    string
	Status   crawler.RunStatus
	Event    progress.LifecycleEvent
	Notes    []crawler.NoteRecord
	Comments map[string]progress.CommentBundle
	Errors   []crawler.ErrorEntry
	// Err is the cause of a failed run.
	Err error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRand fixes the pacing random source.
func WithRand(rng pacing.Rand) Option {
	return func(o *Orchestrator) { o.rng = rng }
}

// WithPauser replaces the blocking wait used for pacing.
func WithPauser(p pacing.Pauser) Option {
	return func(o *Orchestrator) { o.pauser = p }
}

// WithImageScene selects the image variant kept by the note normalizer.
func WithImageScene(scene string) Option {
	return func(o *Orchestrator) { o.imageScene = scene }
}

// Orchestrator runs crawls one at a time. A single Orchestrator must not run
// concurrent crawls; every run issues one upstream request at a time.
type Orchestrator struct {
	upstream crawler.Upstream
	reporter *progress.Reporter
	clock    crawler.Clock
	ids      crawler.IDGenerator
	cfg      Config
	logger   *zap.Logger

	rng        pacing.Rand
	pauser     pacing.Pauser
	imageScene string
	notes      *normalize.NoteNormalizer
	comments   *normalize.CommentNormalizer
}

// New constructs an Orchestrator.
func New(
	upstream crawler.Upstream,
	reporter *progress.Reporter,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = progress.NewReporter(nil, clock, logger)
	}
	o := &Orchestrator{
		upstream: upstream,
		reporter: reporter,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = pacing.NewRand(uint64(clock.Now().UnixNano()))
	}
	o.notes = normalize.NewNoteNormalizer(clock, o.imageScene)
	o.comments = normalize.NewCommentNormalizer(clock.Now().Location())
	return o
}

// runState is exclusively owned by one Run call.
type runState struct {
	run        *crawler.CrawlRun
	req        Request
	totalFound int
	notes      []crawler.NoteRecord
	seen       map[string]struct{}
	comments   map[string]progress.CommentBundle
	errs       crawler.ErrorCollector
	reporter   *progress.Reporter
	logger     *zap.Logger
}

// Run executes one crawl. It never panics; every fault becomes a failed
// result with a matching lifecycle event.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res Result) {
	st := o.newState(req)
	defer func() {
		if rec := recover(); rec != nil {
			st.logger.Error("run panicked", zap.Any("panic", rec), zap.Stack("stack"))
			res = o.fail(ctx, st, &crawler.PanicError{Value: rec})
		}
	}()

	if err := req.validate(); err != nil {
		return o.fail(ctx, st, fmt.Errorf("invalid request: %w", err))
	}

	st.reporter.Report(ctx, st.run, "crawl started", o.data(st), nil)
	st.logger.Info("run started",
		zap.String("query", req.Query),
		zap.Int("count", req.Count),
		zap.String("sort", req.SortMode.String()),
	)

	items, err := o.upstream.Search(ctx, crawler.SearchRequest{
		Query:      req.Query,
		Count:      req.Count,
		Credential: req.Credential,
		SortMode:   req.SortMode,
		Filters:    crawler.UnrestrictedFilters(),
	})
	if err != nil {
		return o.fail(ctx, st, fmt.Errorf("search notes: %w", err))
	}

	candidates := filterNotes(items)
	st.totalFound = len(candidates)
	if len(candidates) == 0 {
		st.logger.Info("search returned no notes", zap.Int("items", len(items)))
		return o.finish(ctx, st, crawler.RunStatusCompleted, "no notes found")
	}

	if err := o.processNotes(ctx, st, candidates); err != nil {
		return o.fail(ctx, st, err)
	}
	if req.GetComments {
		if err := o.collectComments(ctx, st); err != nil {
			return o.fail(ctx, st, err)
		}
	}

	status := crawler.RunStatusSuccess
	message := "crawl finished: " + strconv.Itoa(len(st.notes)) + " notes"
	if !st.errs.Empty() {
		status = crawler.RunStatusCompleted
		message = fmt.Sprintf("crawl finished with %d errors: %d notes", st.errs.Len(), len(st.notes))
	}
	return o.finish(ctx, st, status, message)
}

func (o *Orchestrator) newState(req Request) *runState {
	runID := req.RunID
	if runID == "" {
		var (
			id  string
			err = errors.New("no id generator configured")
		)
		if o.ids != nil {
			id, err = o.ids.NewID()
		}
		if err != nil {
			o.logger.Warn("generate run id failed", zap.Error(err))
			id = "run-" + strconv.FormatInt(o.clock.Now().UnixNano(), 10)
		}
		runID = id
	}
	run := crawler.NewCrawlRun(runID, req.TaskID, req.Query, req.Count, req.SortMode, o.clock.Now())
	return &runState{
		run:      run,
		req:      req,
		seen:     make(map[string]struct{}),
		reporter: o.reporter.With(req.Sink),
		logger:   o.logger.With(zap.String("run_id", runID)),
	}
}

func (o *Orchestrator) pacer(cfg pacing.Config, req Request, logger *zap.Logger) *pacing.Pacer {
	cfg.Enabled = cfg.Enabled && !req.NoDelay
	return pacing.NewPacer(cfg, o.rng, o.pauser, logger)
}

// filterNotes keeps genuine notes, dropping promoted and other result kinds.
func filterNotes(items []crawler.RawItem) []crawler.RawItem {
	out := make([]crawler.RawItem, 0, len(items))
	for _, item := range items {
		if kind, _ := normalize.String(item["model_type"]); kind == "note" {
			out = append(out, item)
		}
	}
	return out
}
