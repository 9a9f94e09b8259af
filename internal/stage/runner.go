// Package stage runs the three reconciliation stages. Each stage is a
// function of the run, the upstream artifact and the collaborators; the
// Runner persists every artifact under the run id.
package stage

import (
	"context"
	"time"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/artifact"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/crosswalk"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/pool"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

// Stages lists the stage names in execution order.
var Stages = []string{artifact.Stage1, artifact.Stage2, artifact.Stage3}

// Runner executes stages of one run.
type Runner struct {
	Run       config.Run
	Exec      dbexec.Executor
	Store     store.Blob
	Crosswalk []crosswalk.Row
	Metrics   *metrics.Collector

	pool *pool.Pool
	now  func() time.Time
}

// NewRunner returns a runner with pools sized from run.
func NewRunner(run config.Run, exec dbexec.Executor, blob store.Blob, rows []crosswalk.Row, m *metrics.Collector) *Runner {
	if m == nil {
		m = metrics.Default
	}
	return &Runner{
		Run:       run,
		Exec:      exec,
		Store:     blob,
		Crosswalk: rows,
		Metrics:   m,
		pool:      pool.FromRun(run),
		now:       time.Now,
	}
}

// Key returns the blob key of a stage artifact.
func (r *Runner) Key(stage string) (string, error) {
	f := r.Run.Files
	var name string
	switch stage {
	case artifact.Stage1:
		name = f.Stage1
	case artifact.Stage2:
		name = f.Stage2
	case artifact.Stage3:
		name = f.Stage3
	case artifact.Stage1 + "_" + string(config.Left):
		name = f.Stage1Left
	case artifact.Stage1 + "_" + string(config.Right):
		name = f.Stage1Right
	default:
		return "", errors.Newf("unknown stage %q", stage)
	}
	return store.Key(r.Run.ID, name), nil
}

// Skip reports whether the artifact of stage already exists.
func (r *Runner) Skip(ctx context.Context, stage string) (bool, error) {
	key, err := r.Key(stage)
	if err != nil {
		return false, err
	}
	ok, err := r.Store.Exists(ctx, key)
	if err != nil {
		return false, errors.Fatal(r.Run.ID, stage, errors.Wrap(err, "artifact store"))
	}
	return ok, nil
}

func (r *Runner) save(ctx context.Context, stage string, v any) error {
	key, err := r.Key(stage)
	if err != nil {
		return err
	}
	if err := store.SaveJSON(ctx, r.Store, key, v); err != nil {
		return errors.Fatal(r.Run.ID, stage, errors.Wrap(err, "artifact store"))
	}
	return nil
}

// Load decodes the stored artifact of stage into v.
func (r *Runner) Load(ctx context.Context, stage string, v any) error {
	key, err := r.Key(stage)
	if err != nil {
		return err
	}
	if err := store.LoadJSON(ctx, r.Store, key, v); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.WithHintf(err, "run %s first", stage)
		}
		return errors.Fatal(r.Run.ID, stage, errors.Wrap(err, "artifact store"))
	}
	return nil
}

func (r *Runner) fatal(stage string, err error) error {
	if err == nil || errors.Is(err, errors.ErrFatal) {
		return err
	}
	logger.With("run", r.Run.ID, "stage", stage).Errorw("stage failed", "error", err)
	return errors.Fatal(r.Run.ID, stage, err)
}

// Stage1 discovers both sides and consolidates them.
func (r *Runner) Stage1(ctx context.Context) (artifact.Stage1Artifact, error) {
	start := r.now()
	defer func() { r.Metrics.RecordStage(artifact.Stage1, time.Since(start)) }()

	metas := make(map[config.Side][]artifact.SideMeta, 2)
	for _, side := range sides {
		m, err := Discover(ctx, r.Run, r.Exec, r.pool, side)
		if err != nil {
			return artifact.Stage1Artifact{}, r.fatal(artifact.Stage1, err)
		}
		metas[side] = m
		raw := artifact.Stage1Side{Header: artifact.NewHeader(r.Run, artifact.Stage1, r.now()), Side: side, Tables: m}
		if err := r.save(ctx, artifact.Stage1+"_"+string(side), raw); err != nil {
			return artifact.Stage1Artifact{}, err
		}
	}
	out := Consolidate1(r.Run, metas[config.Left], metas[config.Right], r.Crosswalk, r.Metrics, r.now())
	logger.With("run", r.Run.ID, "stage", artifact.Stage1).Infow("stage done", "validated", len(out.Tables), "excluded", len(out.Excluded))
	return out, r.save(ctx, artifact.Stage1, out)
}

// Stage2 compares column statistics of the stored Stage-1 artifact.
func (r *Runner) Stage2(ctx context.Context) (artifact.Stage2Artifact, error) {
	start := r.now()
	defer func() { r.Metrics.RecordStage(artifact.Stage2, time.Since(start)) }()

	var s1 artifact.Stage1Artifact
	if err := r.Load(ctx, artifact.Stage1, &s1); err != nil {
		return artifact.Stage2Artifact{}, err
	}
	out, err := Column(ctx, r.Run, r.Exec, r.pool, s1, r.Metrics, r.now())
	if err != nil {
		return artifact.Stage2Artifact{}, r.fatal(artifact.Stage2, err)
	}
	logger.With("run", r.Run.ID, "stage", artifact.Stage2).Infow("stage done", "validated", len(out.Tables), "excluded", len(out.Excluded))
	return out, r.save(ctx, artifact.Stage2, out)
}

// Stage3 reconciles row digests of the stored Stage-2 artifact.
func (r *Runner) Stage3(ctx context.Context) (artifact.Stage3Artifact, error) {
	start := r.now()
	defer func() { r.Metrics.RecordStage(artifact.Stage3, time.Since(start)) }()

	var s2 artifact.Stage2Artifact
	if err := r.Load(ctx, artifact.Stage2, &s2); err != nil {
		return artifact.Stage3Artifact{}, err
	}
	out, err := Hash(ctx, r.Run, r.Exec, r.pool, s2, r.Metrics, r.now())
	if err != nil {
		return artifact.Stage3Artifact{}, r.fatal(artifact.Stage3, err)
	}
	logger.With("run", r.Run.ID, "stage", artifact.Stage3).Infow("stage done", "tables", len(out.Tables), "excluded", len(out.Excluded))
	return out, r.save(ctx, artifact.Stage3, out)
}

// RunStage runs one stage by name unless its artifact exists and force is
// false. skipped reports a reused artifact, which is returned decoded.
func (r *Runner) RunStage(ctx context.Context, stage string, force bool) (result any, skipped bool, err error) {
	if !force {
		done, err := r.Skip(ctx, stage)
		if err != nil {
			return nil, false, err
		}
		if done {
			v, err := r.Artifact(ctx, stage)
			return v, true, err
		}
	}
	switch stage {
	case artifact.Stage1:
		result, err = r.Stage1(ctx)
	case artifact.Stage2:
		result, err = r.Stage2(ctx)
	case artifact.Stage3:
		result, err = r.Stage3(ctx)
	default:
		return nil, false, errors.Newf("unknown stage %q", stage)
	}
	return result, false, err
}

// Artifact loads and decodes the persisted artifact of stage.
func (r *Runner) Artifact(ctx context.Context, stage string) (any, error) {
	var v any
	switch stage {
	case artifact.Stage1:
		v = &artifact.Stage1Artifact{}
	case artifact.Stage2:
		v = &artifact.Stage2Artifact{}
	case artifact.Stage3:
		v = &artifact.Stage3Artifact{}
	default:
		return nil, errors.Newf("unknown stage %q", stage)
	}
	if err := r.Load(ctx, stage, v); err != nil {
		return nil, err
	}
	return v, nil
}

// All runs every stage in order.
func (r *Runner) All(ctx context.Context, force bool) error {
	for _, s := range Stages {
		_, skipped, err := r.RunStage(ctx, s, force)
		if err != nil {
			return err
		}
		if skipped {
			logger.With("run", r.Run.ID, "stage", s).Infow("stage skipped, artifact exists")
		}
	}
	return nil
}
