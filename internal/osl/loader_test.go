package osl

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"shadekit/internal/cache"
	"shadekit/internal/diag"
)

type countingFS struct {
	fstest.MapFS
	reads int
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.reads++
	return c.MapFS.ReadFile(name)
}

func newFS() *countingFS {
	return &countingFS{MapFS: fstest.MapFS{
		"shaders/glow.oso": &fstest.MapFile{Data: []byte(glowBytecode), ModTime: time.Unix(100, 0)},
	}}
}

func TestLoaderLoadsFileOnce(t *testing.T) {
	fsys := newFS()
	l := NewLoader(WithFS(fsys))
	ctx := context.Background()

	a, err := l.LoadFile(ctx, "shaders/glow.oso")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := l.LoadFile(ctx, "shaders/glow.oso")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if a != b || fsys.reads != 1 {
		t.Fatalf("reads = %d, same = %t", fsys.reads, a == b)
	}
	if a.Hash != FileHash("shaders/glow.oso", time.Unix(100, 0).UnixNano()) {
		t.Fatalf("hash = %s", a.Hash)
	}
	if _, ok := l.Info(a.Hash); !ok {
		t.Fatalf("Info misses loaded program")
	}
}

func TestLoaderReloadsModifiedFile(t *testing.T) {
	fsys := newFS()
	l := NewLoader(WithFS(fsys))
	a, _ := l.LoadFile(context.Background(), "shaders/glow.oso")
	fsys.MapFS["shaders/glow.oso"].ModTime = time.Unix(200, 0)
	b, err := l.LoadFile(context.Background(), "shaders/glow.oso")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if a.Hash == b.Hash || fsys.reads != 2 {
		t.Fatalf("modified file not reloaded: reads = %d", fsys.reads)
	}
}

func TestLoaderNegativeCache(t *testing.T) {
	fsys := newFS()
	bag := diag.NewBag(8)
	l := NewLoader(WithFS(fsys), WithLoaderReporter(diag.BagReporter{Bag: bag}))
	for range 3 {
		if _, err := l.LoadFile(context.Background(), "shaders/missing.oso"); !errors.Is(err, ErrUnreadable) {
			t.Fatalf("err = %v, want ErrUnreadable", err)
		}
	}
	if fsys.reads != 1 || bag.Len() != 1 {
		t.Fatalf("reads = %d diagnostics = %d, want one attempt", fsys.reads, bag.Len())
	}
}

func TestLoaderCompilesSource(t *testing.T) {
	fsys := newFS()
	fsys.MapFS["shaders/warm.osl"] = &fstest.MapFile{Data: []byte("surface warm() {}"), ModTime: time.Unix(50, 0)}
	compiles := 0
	compile := func(_ context.Context, src, dst string) error {
		compiles++
		fsys.MapFS[dst] = &fstest.MapFile{Data: []byte(glowBytecode), ModTime: time.Unix(60, 0)}
		return nil
	}
	l := NewLoader(WithFS(fsys), WithCompileFunc(compile))
	for range 2 {
		info, err := l.LoadFile(context.Background(), "shaders/warm.osl")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if info.Query.ShaderName != "glow" {
			t.Fatalf("query = %+v", info.Query)
		}
	}
	if compiles != 1 || fsys.reads != 1 {
		t.Fatalf("compiles = %d reads = %d", compiles, fsys.reads)
	}
}

func TestLoaderSearchPath(t *testing.T) {
	fsys := newFS()
	l := NewLoader(WithFS(fsys), WithSearchPath("lib", "shaders"))
	info, err := l.LoadFile(context.Background(), "glow")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info.Query.ShaderName != "glow" {
		t.Fatalf("query = %+v", info.Query)
	}
	if _, err := l.LoadFile(context.Background(), "shaders/glow.txt"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
}

func TestLoaderBytecodeByContent(t *testing.T) {
	l := NewLoader()
	a := l.LoadBytecode("", glowBytecode)
	b := l.LoadBytecode("", glowBytecode)
	if a != b || a.Hash != BytecodeHash(glowBytecode) {
		t.Fatalf("inline bytecode loaded twice")
	}
}

func TestLoaderDiskCache(t *testing.T) {
	disk, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	first := newFS()
	if _, err := NewLoader(WithFS(first), WithDiskCache(disk)).LoadFile(context.Background(), "shaders/glow.oso"); err != nil {
		t.Fatalf("load: %v", err)
	}
	second := newFS()
	info, err := NewLoader(WithFS(second), WithDiskCache(disk)).LoadFile(context.Background(), "shaders/glow.oso")
	if err != nil {
		t.Fatalf("load from disk: %v", err)
	}
	if second.reads != 0 {
		t.Fatalf("disk cache missed: reads = %d", second.reads)
	}
	if p, ok := info.Query.Param("Tint"); !ok || len(p.Floats) != 3 {
		t.Fatalf("cached query = %+v", info.Query)
	}
}

func TestRuntimeRefCount(t *testing.T) {
	rt := NewRuntime(Config{})
	if rt.Loader() != nil {
		t.Fatalf("loader before acquire")
	}
	rt.Acquire()
	rt.Acquire()
	l := rt.Loader()
	if l == nil || !rt.HasClosure("emission") {
		t.Fatalf("runtime not initialised")
	}
	rt.Release()
	if rt.Loader() != l || rt.Users() != 1 {
		t.Fatalf("shared state dropped early")
	}
	rt.Release()
	rt.Release()
	if rt.Loader() != nil || rt.Users() != 0 || rt.HasClosure("emission") {
		t.Fatalf("shared state kept after last release")
	}
}
