package jit

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/bfjit/compiler"
	"github.com/chazu/bfjit/pkg/bytecode"
)

const helloWorld = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."

func TestEngineRun(t *testing.T) {
	eng := New(Options{Optimize: true})

	var out bytes.Buffer
	report, err := eng.Run("++++++++.", nil, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.String() != "\x08" {
		t.Errorf("output = %q, want %q", out.String(), "\x08")
	}
	if report.CacheHit {
		t.Error("cache hit reported with no cache attached")
	}
	if report.Chunk == nil {
		t.Error("report has no chunk")
	}
}

func TestEngineRunHelloWorld(t *testing.T) {
	eng := New(Options{Optimize: true})

	var out bytes.Buffer
	if _, err := eng.Run(helloWorld, nil, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "Hello World!\n" {
		t.Errorf("output = %q, want %q", out.String(), "Hello World!\n")
	}
}

func TestEngineOptimizedMatchesUnoptimized(t *testing.T) {
	tests := []struct {
		name   string
		source string
		input  string
		eof    bytecode.EOFPolicy
		want   string
	}{
		{"multiply", "++[->++<]>+.", "", bytecode.EOFKeep, "\x05"},
		{"transfer", "+++[>++<-]>.", "", bytecode.EOFKeep, "\x06"},
		{"scan", ">>++++[<+>-]<<[>]>.", "", bytecode.EOFKeep, "\x04"},
		{"wrap down", "-.", "", bytecode.EOFKeep, "\xFF"},
		{"cat", ",[.,]", "xyz", bytecode.EOFZero, "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outputs [2]string
			for i, optimize := range []bool{false, true} {
				eng := New(Options{Optimize: optimize, EOF: tt.eof})
				var out bytes.Buffer
				if _, err := eng.Run(tt.source, strings.NewReader(tt.input), &out); err != nil {
					t.Fatalf("Run (optimize=%v): %v", optimize, err)
				}
				outputs[i] = out.String()
			}

			if outputs[0] != tt.want {
				t.Errorf("unoptimized output = %q, want %q", outputs[0], tt.want)
			}
			if outputs[1] != outputs[0] {
				t.Errorf("optimized output = %q, unoptimized = %q", outputs[1], outputs[0])
			}
		})
	}
}

func TestEngineRejectsUnmatchedOpen(t *testing.T) {
	eng := New(Options{Optimize: true})

	var out bytes.Buffer
	_, err := eng.Run("+[>+", nil, &out)
	if err == nil {
		t.Fatal("expected error for unclosed loop")
	}

	var bracketErr *compiler.BracketError
	if !errors.As(err, &bracketErr) {
		t.Fatalf("error type = %T, want *compiler.BracketError", err)
	}
	if out.Len() != 0 {
		t.Errorf("output written before structural error: %q", out.String())
	}
}

func TestEngineRejectsUnmatchedClose(t *testing.T) {
	eng := New(Options{})

	_, err := eng.Run("+]", nil, nil)
	var bracketErr *compiler.BracketError
	if !errors.As(err, &bracketErr) {
		t.Fatalf("error type = %T, want *compiler.BracketError", err)
	}
}

func TestEngineCacheHit(t *testing.T) {
	cache := testCache(t)
	eng := New(Options{Optimize: true})
	eng.SetCache(cache)

	var first bytes.Buffer
	report, err := eng.Run("+++.", nil, &first)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.CacheHit {
		t.Error("first run reported a cache hit")
	}

	var second bytes.Buffer
	report, err = eng.Run("+++.", nil, &second)
	if err != nil {
		t.Fatalf("Run (cached): %v", err)
	}
	if !report.CacheHit {
		t.Error("second run missed the cache")
	}
	if second.String() != first.String() {
		t.Errorf("cached run output = %q, fresh run output = %q", second.String(), first.String())
	}
}

func TestEngineCacheKeyedByOptions(t *testing.T) {
	cache := testCache(t)

	optimized := New(Options{Optimize: true})
	optimized.SetCache(cache)
	plain := New(Options{Optimize: false})
	plain.SetCache(cache)

	source := "++[->+<]>."
	if _, err := optimized.Run(source, nil, nil); err != nil {
		t.Fatalf("Run (optimized): %v", err)
	}

	// The unoptimized engine must not see the optimized chunk
	report, err := plain.Run(source, nil, nil)
	if err != nil {
		t.Fatalf("Run (plain): %v", err)
	}
	if report.CacheHit {
		t.Error("unoptimized run hit the optimized engine's cache entry")
	}
	if report.Chunk.Optimized() {
		t.Error("unoptimized run executed an optimized chunk")
	}

	n, err := cache.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("cache entries = %d, want 2", n)
	}
}

func TestEngineCompilePopulatesCache(t *testing.T) {
	cache := testCache(t)
	eng := New(Options{Optimize: true})
	eng.SetCache(cache)

	chunk, err := eng.Compile("+[>+<-]")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	cached, err := cache.Get(ContentHash("+[>+<-]", true, false))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(cached.Code, chunk.Code) {
		t.Error("cached chunk differs from compiled chunk")
	}
}

func TestEngineSurvivesBrokenCache(t *testing.T) {
	// A cache whose connection is already closed fails every query; the
	// engine logs and compiles anyway.
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	cache.Close()

	eng := New(Options{Optimize: true})
	eng.SetCache(cache)

	var out bytes.Buffer
	if _, err := eng.Run("++.", nil, &out); err != nil {
		t.Fatalf("Run with broken cache: %v", err)
	}
	if out.String() != "\x02" {
		t.Errorf("output = %q, want %q", out.String(), "\x02")
	}
}

func TestEngineStats(t *testing.T) {
	eng := New(Options{Stats: true})

	var out bytes.Buffer
	report, err := eng.Run("+++.", nil, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// ADD, ADD, ADD, OUTPUT, HALT
	if report.Stats.Executed != 5 {
		t.Errorf("executed = %d, want 5", report.Stats.Executed)
	}
	if report.Stats.OutputBytes != 1 {
		t.Errorf("output bytes = %d, want 1", report.Stats.OutputBytes)
	}
	if report.Stats.Count(bytecode.OpAdd) != 3 {
		t.Errorf("ADD count = %d, want 3", report.Stats.Count(bytecode.OpAdd))
	}
}

func TestEngineTapeFault(t *testing.T) {
	eng := New(Options{CheckBounds: true})

	_, err := eng.Run("<+", nil, nil)
	var fault *bytecode.TapeFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("error type = %T, want *bytecode.TapeFaultError", err)
	}
	if fault.Cursor != -1 {
		t.Errorf("fault cursor = %d, want -1", fault.Cursor)
	}
}

func TestEngineRunChunk(t *testing.T) {
	eng := New(Options{Optimize: true})

	chunk, err := eng.Compile("++++.")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var out bytes.Buffer
	report, err := eng.RunChunk(chunk, nil, &out)
	if err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if out.String() != "\x04" {
		t.Errorf("output = %q, want %q", out.String(), "\x04")
	}
	if report.Chunk != chunk {
		t.Error("report does not reference the executed chunk")
	}
}

func TestEngineDebugEmbedsSourceMap(t *testing.T) {
	eng := New(Options{Optimize: true, Debug: true})

	chunk, err := eng.Compile("+.\n-.")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if chunk.Flags&bytecode.ChunkFlagDebug == 0 {
		t.Error("debug flag not set on generated chunk")
	}
	if len(chunk.SourceMap) == 0 {
		t.Error("no source map entries in debug chunk")
	}
}

func TestContentHash(t *testing.T) {
	base := ContentHash("+[>+<-]", true, false)

	if got := ContentHash("+[>+<-]", true, false); got != base {
		t.Error("equal inputs produced different hashes")
	}
	if got := ContentHash("+[>-<-]", true, false); got == base {
		t.Error("different source produced the same hash")
	}
	if got := ContentHash("+[>+<-]", false, false); got == base {
		t.Error("optimize bit does not affect the hash")
	}
	if got := ContentHash("+[>+<-]", true, true); got == base {
		t.Error("debug bit does not affect the hash")
	}
}
