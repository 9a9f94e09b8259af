package cli

import (
	"bytes"
	"context"

	"github.com/viant/afs"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/crosswalk"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/dbexec"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stage"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

// app holds the collaborators shared by every run of one process.
type app struct {
	cfg       *config.Config
	backends  *dbexec.Backends
	blob      store.Blob
	crosswalk []crosswalk.Row
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := config.LoadFromFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	rows, err := loadCrosswalk(ctx, cfg.CrosswalkFile)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:       cfg,
		backends:  dbexec.NewBackends(cfg, metrics.Default),
		blob:      store.New(cfg.Store.BaseURL),
		crosswalk: rows,
	}, nil
}

// loadCrosswalk reads the crosswalk CSV from a local path or any afs URL.
func loadCrosswalk(ctx context.Context, location string) ([]crosswalk.Row, error) {
	if location == "" {
		return nil, nil
	}
	data, err := afs.New().DownloadWithURL(ctx, location)
	if err != nil {
		return nil, errors.Wrapf(err, "read crosswalk %s", location)
	}
	rows, err := crosswalk.Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parse crosswalk %s", location)
	}
	return rows, nil
}

func (a *app) runner(runID string) *stage.Runner {
	return stage.NewRunner(a.cfg.NewRun(runID), a.backends, a.blob, a.crosswalk, metrics.Default)
}

func (a *app) Close() error {
	return a.backends.Close()
}

// withApp builds the app for one command invocation and closes it afterwards.
func withApp(ctx context.Context, opts *options, fn func(a *app) error) (err error) {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close backends")
		}
	}()
	return fn(a)
}

// asFatal makes every stage failure name its run and stage.
func asFatal(runID, stageName string, err error) error {
	if err == nil || errors.Is(err, errors.ErrFatal) {
		return err
	}
	return errors.Fatal(runID, stageName, err)
}
