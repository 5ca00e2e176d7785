package runner

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3tro1d/pybackup/internal/models"
	"github.com/m3tro1d/pybackup/internal/services/archive"
)

// Mock implementations.
type mockArchiveService struct {
	buildFunc func(ctx context.Context, target models.ArchiveTarget, opts archive.BuildOptions) (*models.ArchiveResult, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockArchiveService) Build(ctx context.Context, target models.ArchiveTarget, opts archive.BuildOptions) (*models.ArchiveResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, target.Name)
	m.mu.Unlock()

	if m.buildFunc != nil {
		return m.buildFunc(ctx, target, opts)
	}
	return &models.ArchiveResult{Name: target.Name, FilesAdded: len(target.SourceDirs)}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testPlan(names ...string) *models.BackupPlan {
	plan := &models.BackupPlan{Compression: models.DefaultCompression()}
	for _, name := range names {
		plan.Targets = append(plan.Targets, models.ArchiveTarget{
			Name:        name,
			SourceDirs:  []string{"/data"},
			Compression: models.DefaultCompression(),
		})
	}
	return plan
}

func TestRun_Success(t *testing.T) {
	archiveSvc := &mockArchiveService{}
	runner := NewWithServices(testLogger(), archiveSvc)

	report, err := runner.Run(context.Background(), testPlan("/b/one.zip", "/b/two.zip"), Options{})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, "/b/one.zip", report.Results[0].Name)
	assert.Equal(t, "/b/two.zip", report.Results[1].Name)
	assert.Equal(t, []string{"/b/one.zip", "/b/two.zip"}, archiveSvc.calls)
}

func TestRun_NoTargets(t *testing.T) {
	archiveSvc := &mockArchiveService{}
	runner := NewWithServices(testLogger(), archiveSvc)

	report, err := runner.Run(context.Background(), testPlan(), Options{})

	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, archiveSvc.calls)
}

func TestRun_NilPlan(t *testing.T) {
	runner := NewWithServices(testLogger(), &mockArchiveService{})

	_, err := runner.Run(context.Background(), nil, Options{})

	assert.Error(t, err)
}

func TestRun_PassesBuildOptions(t *testing.T) {
	var got archive.BuildOptions
	archiveSvc := &mockArchiveService{
		buildFunc: func(_ context.Context, target models.ArchiveTarget, opts archive.BuildOptions) (*models.ArchiveResult, error) {
			got = opts
			return &models.ArchiveResult{Name: target.Name}, nil
		},
	}
	runner := NewWithServices(testLogger(), archiveSvc)

	_, err := runner.Run(context.Background(), testPlan("/b/one.zip"), Options{Verbose: true, Verify: true})

	require.NoError(t, err)
	assert.Equal(t, archive.BuildOptions{Verbose: true, Verify: true}, got)
}

func TestRun_FailedTargetDoesNotStopOthers(t *testing.T) {
	archiveSvc := &mockArchiveService{
		buildFunc: func(_ context.Context, target models.ArchiveTarget, _ archive.BuildOptions) (*models.ArchiveResult, error) {
			if target.Name == "/b/bad.zip" {
				return &models.ArchiveResult{Name: target.Name, Error: errors.New("permission denied")}, nil
			}
			return &models.ArchiveResult{Name: target.Name}, nil
		},
	}

	var logs bytes.Buffer
	runner := NewWithServices(zerolog.New(&logs), archiveSvc)

	report, err := runner.Run(context.Background(), testPlan("/b/one.zip", "/b/bad.zip", "/b/three.zip"), Options{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetsFailed))
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"/b/one.zip", "/b/bad.zip", "/b/three.zip"}, archiveSvc.calls)
	assert.Error(t, report.Results[1].Error)
	assert.NoError(t, report.Results[2].Error)
	assert.Contains(t, logs.String(), "permission denied")
	assert.Contains(t, logs.String(), "archive failed")
}

func TestRun_BuildErrorBecomesResult(t *testing.T) {
	archiveSvc := &mockArchiveService{
		buildFunc: func(context.Context, models.ArchiveTarget, archive.BuildOptions) (*models.ArchiveResult, error) {
			return nil, errors.New("archive target has no destination")
		},
	}
	runner := NewWithServices(testLogger(), archiveSvc)

	report, err := runner.Run(context.Background(), testPlan("/b/one.zip"), Options{})

	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "/b/one.zip", report.Results[0].Name)
}

func TestRun_ConcurrentKeepsPlanOrder(t *testing.T) {
	var inFlight, peak atomic.Int32
	archiveSvc := &mockArchiveService{
		buildFunc: func(_ context.Context, target models.ArchiveTarget, _ archive.BuildOptions) (*models.ArchiveResult, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return &models.ArchiveResult{Name: target.Name}, nil
		},
	}
	runner := NewWithServices(testLogger(), archiveSvc)

	names := []string{"/b/1.zip", "/b/2.zip", "/b/3.zip", "/b/4.zip", "/b/5.zip"}
	report, err := runner.Run(context.Background(), testPlan(names...), Options{Jobs: 2})

	require.NoError(t, err)
	require.Len(t, report.Results, len(names))
	for i, name := range names {
		assert.Equal(t, name, report.Results[i].Name)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_ConcurrentSerializesSameDestination(t *testing.T) {
	var mu sync.Mutex
	active := map[string]bool{}
	var overlapped atomic.Bool

	archiveSvc := &mockArchiveService{
		buildFunc: func(_ context.Context, target models.ArchiveTarget, _ archive.BuildOptions) (*models.ArchiveResult, error) {
			mu.Lock()
			if active[target.Name] {
				overlapped.Store(true)
			}
			active[target.Name] = true
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active[target.Name] = false
			mu.Unlock()
			return &models.ArchiveResult{Name: target.Name}, nil
		},
	}
	runner := NewWithServices(testLogger(), archiveSvc)

	_, err := runner.Run(context.Background(), testPlan("/b/same.zip", "/b/other.zip", "/b/same.zip", "/b/same.zip"), Options{Jobs: 4})

	require.NoError(t, err)
	assert.False(t, overlapped.Load())
	assert.Len(t, archiveSvc.calls, 4)
}

func TestChainByDestination(t *testing.T) {
	plan := testPlan("/b/a.zip", "/b/b.zip", "/b/./a.zip", "/b/c.zip", "/b/b.zip")

	chains := chainByDestination(plan.Targets)

	assert.Equal(t, [][]int{{0, 2}, {1, 4}, {3}}, chains)
}
