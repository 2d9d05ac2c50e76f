package osl

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"shadekit/internal/cache"
	"shadekit/internal/diag"
	"shadekit/internal/trace"
)

var (
	ErrUnknownSource = errors.New("osl: unknown shader source")
	ErrUnreadable    = errors.New("osl: shader source cannot be read")
)

const queryBucket = "query"

// SourceFS is the filesystem the loader reads programs from.
type SourceFS interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// CompileFunc compiles source src into bytecode file dst.
type CompileFunc func(ctx context.Context, src, dst string) error

// ExecCompiler runs an external source compiler as "cmd -o dst -I dir src".
func ExecCompiler(cmd string, includes ...string) CompileFunc {
	return func(ctx context.Context, src, dst string) error {
		args := []string{"-o", dst}
		for _, inc := range includes {
			args = append(args, "-I"+inc)
		}
		args = append(args, "-I"+filepath.Dir(src), src)
		var out bytes.Buffer
		c := exec.CommandContext(ctx, cmd, args...)
		c.Stdout = &out
		c.Stderr = &out
		if err := c.Run(); err != nil {
			return fmt.Errorf("%s %s: %w: %s", cmd, src, err, strings.TrimSpace(out.String()))
		}
		return nil
	}
}

// ShaderInfo describes a loaded program.
type ShaderInfo struct {
	Hash  string `msgpack:"hash"`
	Query *Query `msgpack:"query"`

	HasEmission    bool `msgpack:"emission,omitempty"`
	HasTransparent bool `msgpack:"transparent,omitempty"`
	HasBSSRDF      bool `msgpack:"bssrdf,omitempty"`

	// failed marks a negative entry: the source could not be read and
	// will not be retried.
	failed bool
}

type LoaderOption func(*Loader)

func WithFS(fsys SourceFS) LoaderOption { return func(l *Loader) { l.fs = fsys } }

func WithSearchPath(dirs ...string) LoaderOption {
	return func(l *Loader) { l.searchPath = dirs }
}

func WithCompileFunc(f CompileFunc) LoaderOption { return func(l *Loader) { l.compile = f } }

// WithDiskCache keeps parsed interfaces across processes.
func WithDiskCache(c *cache.Disk) LoaderOption { return func(l *Loader) { l.disk = c } }

func WithLoaderReporter(r diag.Reporter) LoaderOption {
	return func(l *Loader) {
		if r != nil {
			l.reporter = r
		}
	}
}

// Loader loads shader programs at most once per identity. Files are keyed
// by path and modification time, inline bytecode by content hash.
type Loader struct {
	mu         sync.Mutex
	fs         SourceFS
	searchPath []string
	compile    CompileFunc
	disk       *cache.Disk
	reporter   diag.Reporter
	loaded     map[string]*ShaderInfo
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		fs:       osFS{},
		compile:  ExecCompiler("oslc"),
		reporter: diag.NopReporter{},
		loaded:   make(map[string]*ShaderInfo),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FileHash identifies a file version.
func FileHash(path string, modTime int64) string {
	h := md5.New()
	h.Write([]byte(path))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(modTime))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// BytecodeHash identifies inline bytecode.
func BytecodeHash(bytecode string) string {
	sum := md5.Sum([]byte(bytecode))
	return hex.EncodeToString(sum[:])
}

func (l *Loader) modTime(path string) int64 {
	st, err := l.fs.Stat(path)
	if err != nil {
		return 0
	}
	return st.ModTime().UnixNano()
}

// Info returns a loaded program by hash.
func (l *Loader) Info(hash string) (*ShaderInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.loaded[hash]
	if !ok || info.failed {
		return nil, false
	}
	return info, true
}

// LoadFile loads a source (.osl, compiled on demand), a bytecode file (.oso)
// or a bare name looked up in the search path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*ShaderInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	modified := l.modTime(path)
	switch {
	case strings.HasSuffix(path, ".osl"):
		oso := strings.TrimSuffix(path, ".osl") + ".oso"
		osoModified := l.modTime(oso)
		if osoModified != 0 {
			if info, ok := l.loaded[FileHash(oso, osoModified)]; ok {
				return info.result(oso)
			}
		}
		if osoModified == 0 || osoModified < modified {
			if err := l.compile(ctx, path, oso); err != nil {
				diag.ReportError(l.reporter, diag.OSLCompilerFailed, diag.Subject{Path: path}, err.Error()).Emit()
				return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
			}
			modified = l.modTime(oso)
		} else {
			modified = osoModified
		}
		path = oso
	case strings.HasSuffix(path, ".oso"):
	case filepath.Base(path) == path:
		path = l.lookup(path + ".oso")
		modified = l.modTime(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, path)
	}

	hash := FileHash(path, modified)
	if info, ok := l.loaded[hash]; ok {
		return info.result(path)
	}
	if info := l.fromDisk(hash); info != nil {
		l.loaded[hash] = info
		return info, nil
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		l.loaded[hash] = &ShaderInfo{Hash: hash, failed: true}
		diag.ReportError(l.reporter, diag.OSLSourceUnreadable, diag.Subject{Path: path}, err.Error()).Emit()
		trace.Point(trace.FromContext(ctx), trace.ScopeShader, "osl:negative_cache", path)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	return l.loadBytecode(hash, string(data), path), nil
}

// LoadBytecode loads inline bytecode under hash, or the content hash when
// hash is empty.
func (l *Loader) LoadBytecode(hash, bytecode string) *ShaderInfo {
	if hash == "" {
		hash = BytecodeHash(bytecode)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if info, ok := l.loaded[hash]; ok && !info.failed {
		return info
	}
	return l.loadBytecode(hash, bytecode, "")
}

func (l *Loader) loadBytecode(hash, bytecode, path string) *ShaderInfo {
	info := &ShaderInfo{
		Hash:           hash,
		HasEmission:    strings.Contains(bytecode, `"emission"`),
		HasTransparent: strings.Contains(bytecode, `"transparent"`),
		HasBSSRDF:      strings.Contains(bytecode, `"bssrdf"`),
	}
	q, err := ParseQuery(bytecode)
	if err != nil {
		diag.ReportError(l.reporter, diag.OSLMalformedBytecode, diag.Subject{Path: path}, err.Error()).Emit()
		q = &Query{}
	}
	for _, line := range q.Skipped {
		diag.ReportWarning(l.reporter, diag.OSLMalformedParameter, diag.Subject{Path: path},
			"unparsable parameter: "+line).Emit()
	}
	info.Query = q
	l.loaded[hash] = info
	if l.disk != nil && err == nil {
		_ = l.disk.Put(queryBucket, hash, info)
	}
	return info
}

func (l *Loader) fromDisk(hash string) *ShaderInfo {
	if l.disk == nil {
		return nil
	}
	var info ShaderInfo
	ok, err := l.disk.Get(queryBucket, hash, &info)
	if !ok || err != nil || info.Query == nil {
		return nil
	}
	return &info
}

func (l *Loader) lookup(name string) string {
	for _, dir := range l.searchPath {
		p := filepath.Join(dir, name)
		if _, err := l.fs.Stat(p); err == nil {
			return p
		}
	}
	if len(l.searchPath) > 0 {
		return filepath.Join(l.searchPath[0], name)
	}
	return name
}

func (info *ShaderInfo) result(path string) (*ShaderInfo, error) {
	if info.failed {
		return nil, fmt.Errorf("%w: %s (cached)", ErrUnreadable, path)
	}
	return info, nil
}
