// Package engine evaluates workcell construction scripts. Scripts are
// zygomys Lisp run in a sandbox; the builtins create anchors, links, joints
// and model instances through the validated workcell API.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/workcell"
)

// EvalError is a non-fatal error in user code: a parse error, a runtime
// error, or an edit the workcell rejected. Cause holds the workcell error
// when there is one, so errors.Is matches its code.
type EvalError struct {
	Line    int
	Col     int
	Message string
	Cause   error
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func (e EvalError) Unwrap() error { return e.Cause }

// Config configures an Engine.
type Config struct {
	// Metadata is applied to every workcell a script builds.
	Metadata workcell.Metadata
	// Timeout bounds a single evaluation. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  logging.Logger
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandbox, and only the most recent
// call's result is delivered.
type Engine struct {
	cfg Config
	log logging.Logger

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Engine{cfg: cfg, log: logging.OrNop(cfg.Logger)}
}

// Evaluate runs source and returns the workcell it builds.
//
// Return semantics:
//   - On success: workcell + nil errors + nil error
//   - On parse, runtime or integrity failure: nil + eval errors + nil
//   - On fatal failure (timeout, panic, superseded): nil + nil + error
func (e *Engine) Evaluate(source string) (*workcell.Workcell, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	done := logging.Timer(e.log, "script evaluation", "generation", gen)
	defer done()

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		w, evalErrs, err := e.evaluate(source)
		ch <- evalResult{w: w, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, e.cfg.Timeout, &e.mu, &e.generation)
}

func (e *Engine) evaluate(source string) (*workcell.Workcell, []EvalError, error) {
	w := workcell.New()
	if err := w.SetMetadata(e.cfg.Metadata); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(source) == "" {
		return w, nil, nil
	}

	// Sandbox mode keeps scripts away from the file system and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{w: w}
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err, nil), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err, b.rejected), nil
	}
	return w, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalErrors, extracting a
// line number when the message has one. cause is the workcell error a
// builtin reported, if any.
func parseZygomysError(err error, cause error) []EvalError {
	msg := err.Error()
	if cause == nil {
		var verr *workcell.ValidationError
		if errors.As(err, &verr) {
			cause = verr
		}
	}

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2]), Cause: cause}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg), Cause: cause}}
}
