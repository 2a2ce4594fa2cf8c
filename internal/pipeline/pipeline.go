package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/sensingclues/harmonie-grib/internal/config"
	"github.com/sensingclues/harmonie-grib/internal/domain"
	"github.com/sensingclues/harmonie-grib/internal/observability"
)

// Stream and scratch file names inside the work directory.
const (
	PrimaryStreamFile = "temp.grb"
	WindStreamFile    = "temp_wind.grb"
	CropScratchFile   = "temp_bounds.grb"
)

// State is the batch driver's position in a run.
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateProcessing
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options locates inputs and outputs for a run.
type Options struct {
	InputDir      string
	InputPattern  string
	WorkDir       string
	DataDir       string
	StaleDir      string
	StalePattern  string
	ExpectedFiles int
	ProductPrefix string
	Regions       []domain.Region
}

// OptionsFromConfig copies the run layout out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InputDir:      cfg.InputDir,
		InputPattern:  cfg.InputPattern,
		WorkDir:       cfg.WorkDir,
		DataDir:       cfg.DataDir,
		StaleDir:      cfg.StaleDir,
		StalePattern:  cfg.StalePattern,
		ExpectedFiles: cfg.ExpectedFiles,
		ProductPrefix: cfg.ProductPrefix,
		Regions:       cfg.Regions,
	}
}

// Deps are the pipeline's collaborators. Cropper, Notifier and Ledger may be
// nil: a nil Cropper skips slicing, the others are simply not called.
type Deps struct {
	Codec      Codec
	Cropper    Cropper
	Compressor Compressor
	Notifier   Notifier
	Ledger     Ledger
}

// Pipeline runs one batch: validate the inputs, merge them into the output
// streams, then slice and publish the products.
type Pipeline struct {
	deps      Deps
	opts      Options
	rules     []domain.Rule
	slicer    *Slicer
	publisher *Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	state     atomic.Int32
}

// New creates a Pipeline with the given collaborators and observability.
func New(deps Deps, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		deps:      deps,
		opts:      opts,
		rules:     domain.ProductRules(),
		publisher: NewPublisher(deps.Compressor, logger, metrics),
		logger:    logger,
		metrics:   metrics,
	}
	if deps.Cropper != nil {
		p.slicer = NewSlicer(deps.Cropper, p.publisher, filepath.Join(opts.WorkDir, CropScratchFile), logger, metrics)
	}
	return p
}

// State returns the driver's current state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// StateName is State as text, for status reporting.
func (p *Pipeline) StateName() string {
	return p.State().String()
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.metrics.PipelineState.Set(float64(s))
	p.logger.Debug("pipeline state", "state", s.String())
}

// CheckReadiness returns nil once the inputs have been validated and the run
// has not aborted.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	switch s := p.State(); s {
	case StateProcessing, StateFinalizing, StateDone:
		return nil
	case StateAborted:
		return errors.New("pipeline aborted")
	default:
		return fmt.Errorf("pipeline is %s", s)
	}
}

// Run executes the whole batch. It returns the manifest of the published run,
// which may be degraded when slicing was skipped or partly failed.
func (p *Pipeline) Run(ctx context.Context) (domain.RunManifest, error) {
	started := domain.Now()
	p.logger.Info("pipeline started",
		"input_dir", p.opts.InputDir,
		"expected_files", p.opts.ExpectedFiles,
	)

	p.setState(StateValidating)
	files, err := p.validate()
	if err != nil {
		return p.abort(err)
	}

	p.setState(StateProcessing)
	streams, err := p.merge(ctx, files)
	if err != nil {
		return p.abort(err)
	}

	p.setState(StateFinalizing)
	namer := domain.ArtifactNamer{
		DataDir: p.opts.DataDir,
		Prefix:  p.opts.ProductPrefix,
		Label:   domain.RunLabel(files[0].RunTime),
	}
	if err := os.MkdirAll(namer.Dir(), 0o755); err != nil {
		return p.abort(fmt.Errorf("create output directory: %w", err))
	}

	manifest := domain.RunManifest{
		RunLabel:       namer.Label,
		RunTime:        files[0].RunTime,
		Files:          len(files),
		PrimaryRecords: streams.primary.Records(),
		WindRecords:    streams.wind.Records(),
		StartedAt:      started,
	}

	p.sliceAll(ctx, streams, namer, &manifest)

	removed, err := p.publisher.CleanupStale(p.opts.StaleDir, p.opts.StalePattern,
		streams.primary.Path(), streams.wind.Path(), namer.Dir())
	if err != nil {
		p.logger.Warn("stale artifact cleanup incomplete", "error", err)
	}
	if len(removed) > 0 {
		p.logger.Info("removed stale artifacts", "count", len(removed))
	}

	full, err := p.publishFull(ctx, streams, namer)
	if err != nil {
		return p.abort(err)
	}
	manifest.Artifacts = append(full, manifest.Artifacts...)
	manifest.PublishedAt = domain.Now()

	p.setState(StateDone)
	p.metrics.RunDuration.Observe(manifest.PublishedAt.Sub(started).Seconds())
	p.metrics.LastSuccess.Set(float64(manifest.PublishedAt.Unix()))
	p.logger.Info("run published",
		"run", manifest.RunLabel,
		"artifacts", len(manifest.Artifacts),
		"degraded", manifest.Degraded(),
	)

	p.announce(ctx, manifest)
	return manifest, nil
}

func (p *Pipeline) abort(err error) (domain.RunManifest, error) {
	p.setState(StateAborted)
	return domain.RunManifest{}, err
}

// validate lists the inputs in name order and checks they form one complete
// forecast horizon. Nothing is created or removed here.
func (p *Pipeline) validate() ([]domain.ForecastFile, error) {
	paths, err := filepath.Glob(filepath.Join(p.opts.InputDir, p.opts.InputPattern))
	if err != nil {
		return nil, &domain.PreconditionError{Dir: p.opts.InputDir, Reason: fmt.Sprintf("input pattern: %v", err)}
	}

	regular := paths[:0]
	for _, path := range paths {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			regular = append(regular, path)
		}
	}
	sort.Strings(regular)

	if len(regular) == 0 || len(regular) != p.opts.ExpectedFiles {
		return nil, &domain.PreconditionError{Dir: p.opts.InputDir, Found: len(regular), Expected: p.opts.ExpectedFiles}
	}

	files := make([]domain.ForecastFile, 0, len(regular))
	for _, path := range regular {
		f, err := domain.ParseForecastFile(path)
		if err != nil {
			return nil, &domain.PreconditionError{Dir: p.opts.InputDir, Found: len(regular), Expected: p.opts.ExpectedFiles, Reason: err.Error()}
		}
		if len(files) > 0 && !f.RunTime.Equal(files[0].RunTime) {
			return nil, &domain.PreconditionError{
				Dir:    p.opts.InputDir,
				Reason: fmt.Sprintf("%s belongs to run %s, not %s", f.Name, domain.RunLabel(f.RunTime), domain.RunLabel(files[0].RunTime)),
			}
		}
		files = append(files, f)
	}

	p.logger.Info("inputs validated", "files", len(files), "run", domain.RunLabel(files[0].RunTime))
	return files, nil
}

type streamSet struct {
	primary *Stream
	wind    *Stream
}

func (s streamSet) close() error {
	return errors.Join(s.primary.Close(), s.wind.Close())
}

// merge appends every file's transformed records to the streams, deleting
// each file once all its records are in. A failing file is retracted from
// the streams and kept, together with every later file.
func (p *Pipeline) merge(ctx context.Context, files []domain.ForecastFile) (streamSet, error) {
	if err := os.MkdirAll(p.opts.WorkDir, 0o755); err != nil {
		return streamSet{}, fmt.Errorf("create work directory: %w", err)
	}
	primary, err := CreateStream(filepath.Join(p.opts.WorkDir, PrimaryStreamFile))
	if err != nil {
		return streamSet{}, err
	}
	wind, err := CreateStream(filepath.Join(p.opts.WorkDir, WindStreamFile))
	if err != nil {
		primary.Close()
		return streamSet{}, err
	}
	streams := streamSet{primary: primary, wind: wind}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			streams.close()
			return streamSet{}, fmt.Errorf("stopped before %s: %w", f.Name, err)
		}

		pm, wm := primary.Mark(), wind.Mark()
		err := p.processFile(f, streams)
		if err == nil {
			err = os.Remove(f.Path)
		}
		if err != nil {
			if rbErr := errors.Join(primary.Rollback(pm), wind.Rollback(wm)); rbErr != nil {
				p.logger.Error("stream rollback failed", "file", f.Name, "error", rbErr)
			}
			p.logger.Error("processing aborted",
				"file", f.Name,
				"processed", i,
				"remaining", len(files)-i,
				"error", err,
			)
			streams.close()
			return streamSet{}, err
		}

		p.metrics.FilesProcessed.Inc()
		p.logger.Debug("file merged", "file", f.Name, "forecast_hour", f.ForecastHour)
	}

	if err := streams.close(); err != nil {
		return streamSet{}, err
	}
	p.logger.Info("streams merged",
		"primary_records", primary.Records(),
		"wind_records", wind.Records(),
	)
	return streams, nil
}

func (p *Pipeline) processFile(f domain.ForecastFile, streams streamSet) error {
	records, err := p.deps.Codec.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}

	for _, rule := range p.rules {
		rec, err := rule.Apply(records)
		if err != nil {
			p.metrics.RuleFailures.WithLabelValues(rule.Name).Inc()
			var selErr *domain.SelectionError
			if errors.As(err, &selErr) {
				selErr.File = f.Name
				return selErr
			}
			return fmt.Errorf("%s: %w", f.Name, err)
		}

		msg, err := p.deps.Codec.Serialize(rec)
		if err != nil {
			return fmt.Errorf("serialize %s from %s: %w", rule.Name, f.Name, err)
		}
		if rule.Dest.Has(domain.DestPrimary) {
			if err := streams.primary.Append(msg); err != nil {
				return err
			}
			p.metrics.RecordsAppended.WithLabelValues(string(domain.StreamPrimary)).Inc()
		}
		if rule.Dest.Has(domain.DestWind) {
			if err := streams.wind.Append(msg); err != nil {
				return err
			}
			p.metrics.RecordsAppended.WithLabelValues(string(domain.StreamWind)).Inc()
		}
	}
	return nil
}

// sliceAll crops both streams to every region. Failures are recorded in the
// manifest and never abort the run.
func (p *Pipeline) sliceAll(ctx context.Context, streams streamSet, namer domain.ArtifactNamer, m *domain.RunManifest) {
	if p.slicer == nil {
		m.SlicingSkipped = true
		p.metrics.Slices.WithLabelValues("skipped").Add(float64(2 * len(p.opts.Regions)))
		p.logger.Warn("cropping tool unavailable, regional products skipped")
		return
	}

	sources := []StreamSource{
		{Name: domain.StreamPrimary, Path: streams.primary.Path()},
		{Name: domain.StreamWind, Path: streams.wind.Path()},
	}
	artifacts, skipped, err := p.slicer.SliceAll(ctx, sources, p.opts.Regions, namer)
	m.Artifacts = append(m.Artifacts, artifacts...)
	m.SkippedSlices = skipped
	if err != nil {
		p.logger.Warn("some regional products were not published", "skipped", skipped, "error", err)
	}
}

func (p *Pipeline) publishFull(ctx context.Context, streams streamSet, namer domain.ArtifactNamer) ([]domain.Artifact, error) {
	targets := []struct {
		stream domain.StreamName
		src    string
		dst    string
	}{
		{domain.StreamPrimary, streams.primary.Path(), namer.Full()},
		{domain.StreamWind, streams.wind.Path(), namer.Variant(string(domain.StreamWind))},
	}

	// Both streams are compressed before either is renamed, so a failure
	// publishes no full product. Compressed streams stay in the work
	// directory for inspection.
	compressed := make([]string, 0, len(targets))
	for _, t := range targets {
		c, err := p.publisher.Compress(ctx, t.src)
		if err != nil {
			return nil, fmt.Errorf("publish %s stream: %w", t.stream, err)
		}
		compressed = append(compressed, c)
	}

	artifacts := make([]domain.Artifact, 0, len(targets))
	for i, t := range targets {
		a, err := p.publisher.Promote(compressed[i], t.dst)
		if err != nil {
			for j, done := range artifacts {
				_ = os.Rename(done.Path, compressed[j])
			}
			return nil, fmt.Errorf("publish %s stream: %w", t.stream, err)
		}
		a.Stream = t.stream
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// announce hands the manifest to the optional notifier and ledger.
func (p *Pipeline) announce(ctx context.Context, m domain.RunManifest) {
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.Notify(ctx, m); err != nil {
			p.logger.Warn("run notification failed", "run", m.RunLabel, "error", err)
		}
	}
	if p.deps.Ledger != nil {
		if err := p.deps.Ledger.RecordRun(ctx, m); err != nil {
			p.logger.Warn("run ledger update failed", "run", m.RunLabel, "error", err)
		}
	}
}
