package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wardmap/internal/config"
	"wardmap/internal/domain/model"
	"wardmap/internal/domain/repository"
)

// MapRenderer draws the choropleth and writes it to cfg.Output.
type MapRenderer interface {
	Render(ctx context.Context, wards, counties *model.Dataset, valueField string, cfg config.RenderConfig) error
}

// Viewer opens a written image for the user.
type Viewer interface {
	Open(ctx context.Context, path string) error
}

type Pipeline struct {
	cfg      *config.Config
	wards    repository.DatasetSource
	counties repository.DatasetSource
	renderer MapRenderer
	recorder repository.ResultsRecorder
	viewer   Viewer
	out      io.Writer
	logger   *zap.Logger

	projector *Projector
	joiner    *SpatialJoiner
	analyzer  SpatialAnalyzer
	agg       Aggregator
	now       func() time.Time
}

type Option func(*Pipeline)

// WithRecorder persists every successful run.
func WithRecorder(rec repository.ResultsRecorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// WithViewer opens the image after rendering when render.interactive is set.
func WithViewer(v Viewer) Option {
	return func(p *Pipeline) { p.viewer = v }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(
	cfg *config.Config,
	wards, counties repository.DatasetSource,
	renderer MapRenderer,
	out io.Writer,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		wards:     wards,
		counties:  counties,
		renderer:  renderer,
		out:       out,
		logger:    logger,
		projector: NewProjector(logger),
		joiner:    NewSpatialJoiner(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// state carries intermediate results between stages.
type state struct {
	summary  *model.RunSummary
	wards    *model.Dataset
	counties *model.Dataset
	joined   *model.JoinedTable
}

// Run executes load, reprojection, join, aggregation, report, render and
// record. On failure the output image is removed when render.remove_stale
// is set, so a map from an earlier run is never mistaken for this one.
func (p *Pipeline) Run(ctx context.Context) (summary *model.RunSummary, err error) {
	defer func() {
		if err != nil && p.cfg.Render.Enabled && p.cfg.Render.RemoveStale {
			p.removeStale()
		}
	}()

	st, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.aggregate(st); err != nil {
		return nil, err
	}
	NewReporter(p.out).Print(st.summary)

	if p.cfg.Render.Enabled {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := p.renderer.Render(ctx, st.wards, st.counties, p.cfg.PopulationField, p.cfg.Render); err != nil {
			return nil, fmt.Errorf("failed to render map: %w", err)
		}
		st.summary.OutputPath = p.cfg.Render.Output
		p.logger.Info("map written",
			zap.String("stage", string(model.StageRender)),
			zap.String("path", p.cfg.Render.Output),
			zap.Duration("duration", time.Since(start)),
		)
	}

	if p.recorder != nil {
		if err := p.recorder.SaveRun(ctx, st.summary, st.counties, p.cfg.Counties.NameField); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		p.logger.Info("run recorded", zap.String("run_id", st.summary.RunID))
	}

	if p.cfg.Render.Enabled && p.cfg.Render.Interactive {
		p.openViewer(ctx)
	}

	return st.summary, nil
}

// Report runs every stage up to and including the printed report.
func (p *Pipeline) Report(ctx context.Context) (*model.RunSummary, error) {
	st, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.aggregate(st); err != nil {
		return nil, err
	}
	NewReporter(p.out).Print(st.summary)
	return st.summary, nil
}

// Validate loads, reprojects and joins, then prints the partition report.
// It fails only when the datasets cannot be joined or the partition check
// is set to error.
func (p *Pipeline) Validate(ctx context.Context) (*model.RunSummary, error) {
	st, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}
	r := NewReporter(p.out)
	r.PrintCRS(st.summary)
	r.PrintPartition(st.summary)
	return st.summary, nil
}

func (p *Pipeline) prepare(ctx context.Context) (*state, error) {
	summary := &model.RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  p.now().UTC(),
		TargetEPSG: p.cfg.TargetEPSG,
	}
	logger := p.logger.With(zap.String("run_id", summary.RunID))

	wards, err := p.load(ctx, logger, p.wards, "wards")
	if err != nil {
		return nil, err
	}
	counties, err := p.load(ctx, logger, p.counties, "counties")
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	if wards, err = p.projector.Reproject(wards, p.cfg.TargetEPSG); err != nil {
		return nil, err
	}
	if counties, err = p.projector.Reproject(counties, p.cfg.TargetEPSG); err != nil {
		return nil, err
	}
	summary.WardsCRS, summary.CountiesCRS = wards.CRS, counties.CRS
	summary.CRSMatch = wards.CRS == counties.CRS
	logger.Info("datasets reprojected",
		zap.String("stage", string(model.StageProjection)),
		zap.Int("epsg", p.cfg.TargetEPSG),
		zap.Bool("crs_match", summary.CRSMatch),
		zap.Duration("duration", time.Since(start)),
	)

	pred, err := ParsePredicate(p.cfg.Join.Predicate)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	joined, report, err := p.joiner.Join(ctx, wards, counties, JoinOptions{
		Predicate:   pred,
		LeftSuffix:  p.cfg.Join.LeftSuffix,
		RightSuffix: p.cfg.Join.RightSuffix,
	})
	if err != nil {
		return nil, err
	}
	summary.JoinedRows = len(joined.Rows)
	summary.Partition = report
	summary.Dropped = featureNames(wards, report.Dropped, p.cfg.Wards.NameField)
	summary.FannedOut = featureNames(wards, report.FanOut, p.cfg.Wards.NameField)
	logger.Info("spatial join finished",
		zap.String("stage", string(model.StageJoin)),
		zap.String("predicate", string(pred)),
		zap.Int("rows", summary.JoinedRows),
		zap.Duration("duration", time.Since(start)),
	)

	if err := p.checkPartition(logger, summary); err != nil {
		return nil, err
	}

	return &state{summary: summary, wards: wards, counties: counties, joined: joined}, nil
}

func (p *Pipeline) load(ctx context.Context, logger *zap.Logger, src repository.DatasetSource, name string) (*model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded",
		zap.String("stage", string(model.StageLoad)),
		zap.String("dataset", name),
		zap.String("source", ds.Source),
		zap.String("crs", ds.CRS),
		zap.Int("rows", len(ds.Features)),
		zap.Duration("duration", time.Since(start)),
	)
	return ds, nil
}

func (p *Pipeline) checkPartition(logger *zap.Logger, s *model.RunSummary) error {
	if s.Partition.Clean() {
		return nil
	}
	switch p.cfg.Join.PartitionCheck {
	case config.PartitionError:
		return model.JoinError("wards do not partition cleanly: %d without a county, %d in several counties",
			len(s.Partition.Dropped), len(s.Partition.FanOut))
	case config.PartitionWarn:
		logger.Warn("wards do not partition cleanly",
			zap.Strings("dropped", s.Dropped),
			zap.Strings("fan_out", s.FannedOut),
		)
	}
	return nil
}

func (p *Pipeline) aggregate(st *state) error {
	var err error
	countyKey := joinedName(st.joined.Columns, p.cfg.Counties.NameField, p.cfg.Join.RightSuffix)
	wardKey := joinedName(st.joined.Columns, p.cfg.Wards.NameField, p.cfg.Join.LeftSuffix)
	value := joinedName(st.joined.Columns, p.cfg.PopulationField, p.cfg.Join.LeftSuffix)

	if len(st.wards.Features) == 0 {
		return model.AggregationError("%s: %w", st.wards.Name, model.ErrEmptyDataset)
	}
	if st.summary.ByCounty, err = p.agg.Sum(st.joined, countyKey, value); err != nil {
		return err
	}
	if st.summary.ByWard, err = p.agg.Sum(st.joined, wardKey, value); err != nil {
		return err
	}
	st.summary.CountyStats = p.analyzer.Analyze(st.counties, p.cfg.Counties.NameField, st.summary.ByCounty)

	p.logger.Info("aggregation finished",
		zap.String("stage", string(model.StageAggregation)),
		zap.Int("counties", len(st.summary.ByCounty.Keys)),
		zap.Int("wards", len(st.summary.ByWard.Keys)),
		zap.Int64("total", st.summary.ByCounty.Total),
	)
	return nil
}

func (p *Pipeline) removeStale() {
	path := p.cfg.Render.Output
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("failed to remove stale map", zap.String("path", path), zap.Error(err))
		return
	}
	p.logger.Debug("stale map removed", zap.String("path", path))
}

func (p *Pipeline) openViewer(ctx context.Context) {
	if p.viewer == nil {
		return
	}
	if err := p.viewer.Open(ctx, p.cfg.Render.Output); err != nil {
		p.logger.Warn("interactive display skipped", zap.Error(err))
	}
}

// joinedName returns the joined column for a source attribute, which carries
// the side's suffix when the name collided.
func joinedName(cols []string, field, suffix string) string {
	if hasColumn(cols, field) {
		return field
	}
	return field + "_" + suffix
}

func featureNames(ds *model.Dataset, indices []int, field string) []string {
	byIndex := make(map[int]string, len(ds.Features))
	for _, f := range ds.Features {
		byIndex[f.Index] = f.Attrs[field]
	}
	names := make([]string, 0, len(indices))
	for _, i := range indices {
		names = append(names, byIndex[i])
	}
	return names
}
