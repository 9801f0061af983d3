// Package asset resolves asset references found in robot descriptions and
// model instances to their content.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrMissing is returned when a reference names no available asset.
var ErrMissing = errors.New("asset missing")

// Resolver maps an asset reference to its bytes.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, ref string) ([]byte, error)

// Resolve calls f(ctx, ref).
func (f ResolverFunc) Resolve(ctx context.Context, ref string) ([]byte, error) { return f(ctx, ref) }

// DirResolver resolves package://, file:// and relative references against
// the local file system.
type DirResolver struct {
	// Base is the directory relative references are resolved from.
	Base string
	// Packages maps package names to directories. A package without an
	// entry is looked up as a directory of that name under Base.
	Packages map[string]string
}

// Resolve implements Resolver.
func (d DirResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.Path(ref)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, ErrMissing)
	}
	return b, err
}

// Path returns the file path a reference maps to.
func (d DirResolver) Path(ref string) (string, error) {
	switch {
	case ref == "":
		return "", fmt.Errorf("empty reference: %w", ErrMissing)
	case strings.HasPrefix(ref, "package://"):
		rest := strings.TrimPrefix(ref, "package://")
		pkg, rel, ok := strings.Cut(rest, "/")
		if !ok || pkg == "" {
			return "", fmt.Errorf("%s: malformed package reference: %w", ref, ErrMissing)
		}
		dir, ok := d.Packages[pkg]
		if !ok {
			dir = filepath.Join(d.Base, pkg)
		}
		return filepath.Join(dir, filepath.FromSlash(rel)), nil
	case strings.HasPrefix(ref, "file://"):
		return filepath.FromSlash(strings.TrimPrefix(ref, "file://")), nil
	case strings.Contains(ref, "://"):
		return "", fmt.Errorf("%s: unsupported scheme: %w", ref, ErrMissing)
	case filepath.IsAbs(ref):
		return ref, nil
	}
	return filepath.Join(d.Base, filepath.FromSlash(ref)), nil
}

// MapResolver serves assets from memory, keyed by reference.
type MapResolver map[string][]byte

// Resolve implements Resolver.
func (m MapResolver) Resolve(_ context.Context, ref string) ([]byte, error) {
	b, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrMissing)
	}
	return b, nil
}

// FSResolver resolves references against an fs.FS, stripping any
// package:// or file:// scheme.
type FSResolver struct {
	FS fs.FS
}

// Resolve implements Resolver.
func (r FSResolver) Resolve(_ context.Context, ref string) ([]byte, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(ref, "package://"), "file://")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	b, err := fs.ReadFile(r.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, ErrMissing)
	}
	return b, err
}

// Chain tries each resolver in turn and returns the first hit.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, ref string) ([]byte, error) {
	for _, r := range c {
		b, err := r.Resolve(ctx, ref)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrMissing) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", ref, ErrMissing)
}

// Exists reports whether r can resolve ref.
func Exists(ctx context.Context, r Resolver, ref string) bool {
	if r == nil {
		return false
	}
	_, err := r.Resolve(ctx, ref)
	return err == nil
}
