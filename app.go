package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/workcell/pkg/config"
	"github.com/chazu/workcell/pkg/editor"
	"github.com/chazu/workcell/pkg/engine"
	"github.com/chazu/workcell/pkg/jobs"
	"github.com/chazu/workcell/pkg/kernel"
	"github.com/chazu/workcell/pkg/kernel/sdfx"
	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/tessellate"
	"github.com/chazu/workcell/pkg/urdf"
	"github.com/chazu/workcell/pkg/workcell"
)

// colorPalette is a default palette for parts without a material colour.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// ScriptExt is the file extension of workcell construction scripts.
const ScriptExt = ".wcl"

// ErrUnknownFormat is returned for a file extension no reader or writer
// handles.
var ErrUnknownFormat = errors.New("unknown file format")

// App ties the editing session to the script engine and the geometry
// kernel. A frontend binds to its methods; main drives it headless.
type App struct {
	cfg     *config.Config
	log     logging.Logger
	pool    *jobs.Pool
	session *editor.Session
	engine  *engine.Engine
	kernel  kernel.Kernel
	unsub   func()
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
	// Unmeshed lists mesh-file visuals the renderer loads itself.
	Unmeshed []string `json:"unmeshed"`
}

func newEvalResult() EvalResult {
	return EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
		Unmeshed: []string{},
	}
}

// NewApp builds an App from cfg. A nil cfg means config.Default.
func NewApp(cfg *config.Config, log logging.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log = logging.OrNop(log)

	pool := jobs.NewPool(jobs.Config{Concurrency: cfg.Jobs.Concurrency, Logger: logging.With(log, "component", "jobs")})
	session, err := editor.New(editor.Config{
		Metadata:       cfg.Metadata(),
		Cascade:        cfg.CascadePolicy(),
		JournalLimit:   cfg.Editor.JournalLimit,
		ValidateSchema: cfg.Import.ValidateSchema,
		Packages:       cfg.Import.Packages,
		Runner:         pool,
		Logger:         logging.With(log, "component", "editor"),
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		session: session,
		engine: engine.NewEngine(engine.Config{
			Metadata: cfg.Metadata(),
			Timeout:  cfg.Script.Timeout,
			Logger:   logging.With(log, "component", "engine"),
		}),
		kernel: sdfx.New(),
	}
	a.unsub = session.Subscribe(func(snap *workcell.Workcell, cs workcell.ChangeSet) {
		anchors, links, joints, models := snap.Counts()
		log.Debug("document changed", "label", cs.Label, "changes", len(cs.Changes),
			"anchors", anchors, "links", links, "joints", joints, "models", models)
	})
	return a, nil
}

// Close stops the session and its job pool.
func (a *App) Close() {
	a.unsub()
	a.session.Close()
	a.pool.Close()
}

// Session returns the editing session.
func (a *App) Session() *editor.Session { return a.session }

// Evaluate runs a construction script and returns its meshes without
// touching the open document.
func (a *App) Evaluate(source string) EvalResult {
	result := newEvalResult()

	w, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.log.Error("evaluate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	for _, f := range workcell.Validate(w) {
		if f.Severity == workcell.SeverityWarning {
			result.Warnings = append(result.Warnings, EvalErrorData{Message: f.Error()})
		}
	}
	a.render(context.Background(), w, &result)
	return result
}

// Render meshes the open document.
func (a *App) Render(ctx context.Context) EvalResult {
	result := newEvalResult()
	a.render(ctx, a.session.Snapshot(), &result)
	return result
}

func (a *App) render(ctx context.Context, w *workcell.Workcell, result *EvalResult) {
	res, err := tessellate.Tessellate(ctx, w, a.kernel, tessellate.Options{
		Concurrency: a.cfg.Jobs.Concurrency,
		Logger:      a.log,
	})
	if err != nil {
		a.log.Error("tessellate failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "tessellation failed: " + err.Error()})
		return
	}
	for i, p := range res.Parts {
		color := colorPalette[i%len(colorPalette)]
		if p.Color != nil {
			color = hexColor(*p.Color)
		}
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: p.Mesh.Vertices,
			Normals:  p.Mesh.Normals,
			Indices:  p.Mesh.Indices,
			PartName: p.Mesh.PartName,
			Color:    color,
		})
	}
	for _, s := range res.Skipped {
		result.Unmeshed = append(result.Unmeshed, s.Source)
	}
}

func hexColor(c workcell.RGBA) string {
	clamp := func(f float64) int { return int(max(0, min(1, f))*255 + 0.5) }
	return fmt.Sprintf("#%02X%02X%02X", clamp(c.R), clamp(c.G), clamp(c.B))
}

// Load replaces the open document with the file at path. Site documents
// are opened; robot descriptions and scripts become a new document holding
// their contents as a single history entry.
func (a *App) Load(ctx context.Context, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".urdf":
		meta := a.cfg.Metadata()
		if err := a.session.NewDocument(meta); err != nil {
			return err
		}
		res, _, err := a.session.Import(ctx, path, editor.MergeOptions{})
		if err != nil {
			return err
		}
		for _, w := range res.Report.Warnings {
			a.log.Warn("import warning", "path", path, "warning", w.Error())
		}
		if meta.Name == "" && res.Report.Name != "" {
			meta.Name = res.Report.Name
			return a.session.SetMetadata(meta)
		}
		return nil

	case ScriptExt:
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		w, evalErrs, err := a.engine.Evaluate(string(src))
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", path, err)
		}
		if len(evalErrs) > 0 {
			errs := make([]error, len(evalErrs))
			for i, e := range evalErrs {
				errs[i] = fmt.Errorf("%s: %w", path, e)
			}
			return errors.Join(errs...)
		}
		if err := a.session.NewDocument(w.Metadata()); err != nil {
			return err
		}
		_, err = a.session.MergeImport(w, editor.MergeOptions{Label: "script " + filepath.Base(path)})
		return err

	case ".json", ".wcb", ".wcz":
		return a.session.Open(path)
	}
	return fmt.Errorf("%s: %w %q", path, ErrUnknownFormat, ext)
}

// Write stores the open document at path: a robot description for .urdf,
// otherwise a site document.
func (a *App) Write(ctx context.Context, path string, opts urdf.ExportOptions) error {
	if strings.ToLower(filepath.Ext(path)) != ".urdf" {
		return a.session.Save(path)
	}
	h := a.session.SubmitExport(ctx, path, opts)
	v, err := a.session.Wait(ctx, h)
	a.session.Release(h)
	if err != nil {
		return err
	}
	a.log.Info("exported robot description", "path", path, "bytes", v.(*editor.ExportResult).Bytes)
	return nil
}

// WritePackage exports the open document as a description package under
// dir and returns the robot file it wrote.
func (a *App) WritePackage(dir string) (string, error) {
	w := a.session.Snapshot()
	return urdf.ExportPackage(w, dir, urdf.DefaultPackageContext(w))
}

// Convert loads in and writes it to out.
func (a *App) Convert(ctx context.Context, in, out string, opts urdf.ExportOptions) error {
	done := logging.Timer(a.log, "convert", "in", in, "out", out)
	defer done()
	if err := a.Load(ctx, in); err != nil {
		return err
	}
	for _, f := range a.session.Validate() {
		if f.Severity == workcell.SeverityWarning {
			a.log.Warn("validation", "finding", f.Error())
		}
	}
	return a.Write(ctx, out, opts)
}
