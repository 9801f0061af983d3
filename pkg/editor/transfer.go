package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/workcell/pkg/asset"
	"github.com/chazu/workcell/pkg/jobs"
	"github.com/chazu/workcell/pkg/urdf"
	"github.com/chazu/workcell/pkg/workcell"
)

// ImportResult is the value an import job produces.
type ImportResult struct {
	Path     string
	Workcell *workcell.Workcell
	Report   *urdf.Report
}

// ExportResult is the value an export job produces.
type ExportResult struct {
	Path  string
	Bytes int
}

// SubmitImport reads the robot description at path in the background. The
// job builds a separate workcell in the session's conventions; it never
// touches the live document. Pass the result to MergeImport.
func (s *Session) SubmitImport(ctx context.Context, path string) jobs.Handle {
	s.mu.Lock()
	meta := s.w.Metadata()
	s.mu.Unlock()

	var res asset.Resolver = asset.DirResolver{Base: filepath.Dir(path), Packages: s.cfg.Packages}
	if s.assets != nil {
		res = asset.Chain{res, s.assets}
	}
	opts := urdf.ImportOptions{
		Unit:           meta.Unit,
		UpAxis:         meta.UpAxis,
		Resolver:       res,
		ValidateSchema: s.cfg.ValidateSchema,
		Logger:         s.cfg.Logger,
	}
	s.log.Info("import submitted", "path", path)
	return s.runner.Submit(ctx, "import "+filepath.Base(path), func(ctx context.Context) (any, error) {
		w, rep, err := urdf.ImportFile(ctx, path, opts)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		return &ImportResult{Path: path, Workcell: w, Report: rep}, nil
	})
}

// SubmitExport writes a snapshot of the document as a robot description at
// path in the background. Later edits do not affect the output.
func (s *Session) SubmitExport(ctx context.Context, path string, opts urdf.ExportOptions) jobs.Handle {
	snap := s.Snapshot()
	s.log.Info("export submitted", "path", path)
	return s.runner.Submit(ctx, "export "+filepath.Base(path), func(ctx context.Context) (any, error) {
		data, err := urdf.Export(snap, opts)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("export %s: %w", path, err)
		}
		return &ExportResult{Path: path, Bytes: len(data)}, nil
	})
}

// Wait blocks until the job h finishes and returns its result. The job's
// record stays with the runner until Release.
func (s *Session) Wait(ctx context.Context, h jobs.Handle) (any, error) {
	st, err := s.runner.Wait(ctx, h)
	if err != nil {
		return nil, err
	}
	if st.State == jobs.Failed {
		return nil, st.Err
	}
	return st.Result, nil
}

// Poll returns the state of job h without blocking.
func (s *Session) Poll(h jobs.Handle) (jobs.Status, error) { return s.runner.Poll(h) }

// Cancel stops job h. A canceled import is never merged.
func (s *Session) Cancel(h jobs.Handle) error { return s.runner.Cancel(h) }

// Release drops the runner's record of a finished job h.
func (s *Session) Release(h jobs.Handle) { s.runner.Forget(h) }

// Import runs an import job to completion and merges the result.
func (s *Session) Import(ctx context.Context, path string, opts MergeOptions) (*ImportResult, Remap, error) {
	h := s.SubmitImport(ctx, path)
	v, err := s.Wait(ctx, h)
	s.Release(h)
	if err != nil {
		return nil, Remap{}, err
	}
	res := v.(*ImportResult)
	if opts.Label == "" {
		opts.Label = "import " + filepath.Base(path)
	}
	m, err := s.MergeImport(res.Workcell, opts)
	if err != nil {
		return nil, Remap{}, err
	}
	return res, m, nil
}
