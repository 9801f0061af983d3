package asset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"
)

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	meshDir := filepath.Join(dir, "arm_description", "meshes")
	if err := os.MkdirAll(meshDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(meshDir, "base.stl"), []byte("solid"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := DirResolver{Base: dir}
	ctx := context.Background()
	for _, ref := range []string{
		"package://arm_description/meshes/base.stl",
		"arm_description/meshes/base.stl",
		"file://" + filepath.ToSlash(filepath.Join(meshDir, "base.stl")),
	} {
		b, err := r.Resolve(ctx, ref)
		if err != nil {
			t.Errorf("Resolve(%q): %v", ref, err)
			continue
		}
		if string(b) != "solid" {
			t.Errorf("Resolve(%q) = %q", ref, b)
		}
	}

	if _, err := r.Resolve(ctx, "package://arm_description/meshes/missing.stl"); !errors.Is(err, ErrMissing) {
		t.Errorf("missing file: got %v, want ErrMissing", err)
	}
	if _, err := r.Resolve(ctx, "http://example.com/x.stl"); !errors.Is(err, ErrMissing) {
		t.Errorf("unsupported scheme: got %v, want ErrMissing", err)
	}
}

func TestDirResolverPackageMap(t *testing.T) {
	r := DirResolver{Base: "/base", Packages: map[string]string{"gripper": "/opt/gripper"}}
	got, err := r.Path("package://gripper/meshes/finger.dae")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/opt/gripper", "meshes", "finger.dae"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestChain(t *testing.T) {
	c := Chain{
		MapResolver{"a": []byte("from map")},
		FSResolver{FS: fstest.MapFS{"pkg/b.stl": {Data: []byte("from fs")}}},
	}
	ctx := context.Background()
	if b, err := c.Resolve(ctx, "a"); err != nil || string(b) != "from map" {
		t.Errorf("Resolve(a) = %q, %v", b, err)
	}
	if b, err := c.Resolve(ctx, "package://pkg/b.stl"); err != nil || string(b) != "from fs" {
		t.Errorf("Resolve(b) = %q, %v", b, err)
	}
	if Exists(ctx, c, "c") {
		t.Error("Exists(c) = true")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (DirResolver{}).Resolve(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestCacheSharesLookups(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	slow := ResolverFunc(func(_ context.Context, ref string) ([]byte, error) {
		calls.Add(1)
		<-gate
		if ref == "missing.stl" {
			return nil, ErrMissing
		}
		return []byte(ref), nil
	})
	c := NewCache(slow)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b, err := c.Resolve(ctx, "arm.stl"); err != nil || string(b) != "arm.stl" {
				t.Errorf("Resolve = %q, %v", b, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if _, err := c.Resolve(ctx, "arm.stl"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("underlying resolves = %d, want 1", n)
	}

	if Exists(ctx, c, "missing.stl") || Exists(ctx, c, "missing.stl") {
		t.Error("missing asset reported as present")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("misses were cached: %d resolves, want 3", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Error("Purge kept entries")
	}
}
