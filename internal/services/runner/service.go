// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/m3tro1d/pybackup/internal/config"
	"github.com/m3tro1d/pybackup/internal/models"
	"github.com/m3tro1d/pybackup/internal/services/archive"
)

// ErrTargetsFailed is returned by Run when at least one archive could not be built.
var ErrTargetsFailed = errors.New("archive targets failed")

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, plan *models.BackupPlan, opts Options) (*models.RunReport, error)
}

// Options controls a backup run.
type Options struct {
	Verbose bool
	Verify  bool
	Jobs    int // archives built at once; values below 2 run sequentially
}

// Impl implements the runner Service interface.
type Impl struct {
	archiveSvc archive.Service
	logger     zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		archiveSvc: archive.New(logger),
		logger:     logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(logger zerolog.Logger, archiveSvc archive.Service) *Impl {
	return &Impl{
		archiveSvc: archiveSvc,
		logger:     logger,
	}
}

// Run builds every target of the plan. A failed target does not stop the
// others. Results are reported in plan order.
func (s *Impl) Run(ctx context.Context, plan *models.BackupPlan, opts Options) (*models.RunReport, error) {
	if plan == nil {
		return nil, errors.New("plan is nil")
	}

	startTime := time.Now()
	report := &models.RunReport{Results: make([]models.ArchiveResult, len(plan.Targets))}

	s.logger.Info().
		Int("targets", len(plan.Targets)).
		Str("compression", plan.Compression.String()).
		Int("jobs", max(opts.Jobs, 1)).
		Msg("starting backup run")

	buildOpts := archive.BuildOptions{Verbose: opts.Verbose, Verify: opts.Verify}

	if opts.Jobs < 2 {
		for i, target := range plan.Targets {
			report.Results[i] = s.build(ctx, target, buildOpts)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Jobs)
		for _, chain := range chainByDestination(plan.Targets) {
			g.Go(func() error {
				for _, i := range chain {
					report.Results[i] = s.build(gctx, plan.Targets[i], buildOpts)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, result := range report.Results {
		if result.Error != nil {
			report.Failed++
		}
	}
	report.Duration = time.Since(startTime)

	if report.Failed > 0 {
		s.logger.Error().
			Int("failed", report.Failed).
			Int("targets", len(plan.Targets)).
			Dur("duration", report.Duration).
			Msg("backup run finished with failures")
		return report, errors.Wrapf(ErrTargetsFailed, "%d of %d", report.Failed, len(plan.Targets))
	}

	s.logger.Info().
		Int("targets", len(plan.Targets)).
		Dur("duration", report.Duration).
		Msg("backup run completed successfully")

	return report, nil
}

func (s *Impl) build(ctx context.Context, target models.ArchiveTarget, opts archive.BuildOptions) models.ArchiveResult {
	result, err := s.archiveSvc.Build(ctx, target, opts)
	if err != nil {
		result = &models.ArchiveResult{Name: target.Name, Error: err}
	}
	if result.Error != nil {
		s.logger.Error().
			Err(result.Error).
			Str("archive", target.Name).
			Msg("archive failed")
	}
	return *result
}

// chainByDestination groups target indexes by destination path. Each chain
// keeps plan order and is built by a single goroutine.
func chainByDestination(targets []models.ArchiveTarget) [][]int {
	var chains [][]int
	byKey := make(map[string]int, len(targets))
	for i, target := range targets {
		key := config.DestinationKey(target.Name)
		if c, ok := byKey[key]; ok {
			chains[c] = append(chains[c], i)
			continue
		}
		byKey[key] = len(chains)
		chains = append(chains, []int{i})
	}
	return chains
}
