// Package jit drives Brainfuck source through the whole pipeline: lex,
// match loops, optimize, lower to bytecode, execute. Compiled chunks can
// be reused across runs and processes through a content-addressed SQLite
// cache.
package jit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/bfjit/compiler"
	"github.com/chazu/bfjit/pkg/bytecode"
)

var log = commonlog.GetLogger("bfjit.jit")

// Options controls how the engine compiles and runs programs.
type Options struct {
	Optimize    bool // collapse runs and recognize loop idioms before lowering
	Debug       bool // embed a source map in generated chunks
	TapeSize    int  // cells, bytecode.DefaultTapeSize when 0
	EOF         bytecode.EOFPolicy
	CheckBounds bool
	Stats       bool // collect per-opcode execution counts
	Trace       bool // print every instruction as it executes
}

// Engine compiles source programs to bytecode chunks and executes them.
// Attach a Cache to reuse chunks compiled by earlier runs.
type Engine struct {
	opts  Options
	cache *Cache
}

// New creates an engine with the given options and no cache attached.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// SetCache attaches a compiled-chunk cache. Nil detaches.
func (e *Engine) SetCache(c *Cache) {
	e.cache = c
}

// ContentHash computes the cache key for a source program. The hash
// covers a key format tag, the bytecode format version, the option bits
// that change generated code, and the source text.
func ContentHash(source string, optimize, debug bool) [32]byte {
	var buf []byte

	// Tag byte for the key format
	buf = append(buf, 0x01)

	var verBuf [2]byte
	binary.BigEndian.PutUint16(verBuf[:], bytecode.BytecodeVersion)
	buf = append(buf, verBuf[:]...)

	var optBits byte
	if optimize {
		optBits |= 0x01
	}
	if debug {
		optBits |= 0x02
	}
	buf = append(buf, optBits)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(source)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, source...)

	return sha256.Sum256(buf)
}

// Compile returns the bytecode chunk for source, reusing a cached chunk
// when the cache holds one for the same source and options.
func (e *Engine) Compile(source string) (*bytecode.Chunk, error) {
	chunk, _, err := e.compile(source)
	return chunk, err
}

func (e *Engine) compile(source string) (*bytecode.Chunk, bool, error) {
	var key [32]byte
	if e.cache != nil {
		key = ContentHash(source, e.opts.Optimize, e.opts.Debug)
		chunk, err := e.cache.Get(key)
		if err == nil {
			log.Debugf("cache hit %s", hashString(key))
			return chunk, true, nil
		}
		if !errors.Is(err, ErrNotCached) {
			// A broken cache should not stop the run
			log.Errorf("cache lookup: %s", err.Error())
		}
	}

	chunk, err := e.generate(source)
	if err != nil {
		return nil, false, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, chunk); err != nil {
			log.Errorf("cache store: %s", err.Error())
		} else {
			log.Debugf("cached %s", hashString(key))
		}
	}
	return chunk, false, nil
}

func (e *Engine) generate(source string) (*bytecode.Chunk, error) {
	prog, err := compiler.Parse(source)
	if err != nil {
		return nil, err
	}
	if e.opts.Optimize {
		prog = compiler.Optimize(prog)
	}

	var flags bytecode.ChunkFlags
	if e.opts.Optimize {
		flags |= bytecode.ChunkFlagOptimized
	}
	if e.opts.Debug {
		flags |= bytecode.ChunkFlagDebug
	}

	chunk, err := bytecode.Generate(prog, flags)
	if err != nil {
		return nil, err
	}
	log.Debugf("compiled %d source bytes to %d bytecode bytes", len(source), chunk.CodeLen())
	return chunk, nil
}

// RunReport describes one program execution.
type RunReport struct {
	Chunk       *bytecode.Chunk
	CacheHit    bool
	CompileTime time.Duration
	ExecuteTime time.Duration
	Stats       bytecode.Stats // zero unless Options.Stats
}

// Run compiles source and executes it against a fresh zeroed tape,
// reading input from in and writing output to out.
func (e *Engine) Run(source string, in io.Reader, out io.Writer) (*RunReport, error) {
	compileStart := time.Now()
	chunk, hit, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	compileTime := time.Since(compileStart)

	report, err := e.RunChunk(chunk, in, out)
	if err != nil {
		return nil, err
	}
	report.CacheHit = hit
	report.CompileTime = compileTime
	return report, nil
}

// RunChunk executes an already compiled chunk against a fresh zeroed
// tape. Used for chunks loaded from .bfc files, which skip compilation.
func (e *Engine) RunChunk(chunk *bytecode.Chunk, in io.Reader, out io.Writer) (*RunReport, error) {
	vm := bytecode.NewVM(chunk, bytecode.Options{
		TapeSize:     e.opts.TapeSize,
		In:           in,
		Out:          out,
		EOF:          e.opts.EOF,
		CheckBounds:  e.opts.CheckBounds,
		CollectStats: e.opts.Stats,
		Trace:        e.opts.Trace,
	})

	start := time.Now()
	if err := vm.Run(); err != nil {
		return nil, err
	}

	return &RunReport{
		Chunk:       chunk,
		ExecuteTime: time.Since(start),
		Stats:       vm.Stats(),
	}, nil
}

func hashString(h [32]byte) string {
	return hex.EncodeToString(h[:8])
}
