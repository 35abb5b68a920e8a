//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline drives the per-file analysis: parse, normalize, build a CFG per function,
// fingerprint it, and extract block/segment windows. It runs across a bounded worker pool with
// ordered reduction back into a pre-sized results slice, regardless of which worker finishes
// first, and is shared by both the tree-scanning CLI (cmd/codeclone) and the golangci-lint plugin
// surface (cmd/gclplugin), which drives it over a single already-parsed package instead of
// walking a tree itself. AnalyzeTree optionally consults an internal/cache.Cache to skip
// reparsing files whose stat signature hasn't changed since the last run.
package pipeline

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codeclone-go/codeclone/internal/cache"
	"github.com/codeclone-go/codeclone/internal/cfgbuild"
	"github.com/codeclone-go/codeclone/internal/fingerprint"
	"github.com/codeclone-go/codeclone/internal/gofront"
	"github.com/codeclone-go/codeclone/internal/grouping"
	"github.com/codeclone-go/codeclone/internal/normalize"
	"github.com/codeclone-go/codeclone/internal/sourceio"
	"github.com/codeclone-go/codeclone/util/asthelper"
)

// Options configures per-file analysis.
type Options struct {
	WindowSize int
}

// SkipReason classifies why a file contributed nothing to the analysis, distinguishing causes the
// driver must treat differently under gating (source-read errors become a contract error; parse
// errors never do).
type SkipReason int

const (
	// SkipNone is the zero value: the file was analyzed normally.
	SkipNone SkipReason = iota
	// SkipSourceIO means the file could not be read (missing, unreadable, or over the policy's
	// size bound). Non-fatal in normal mode; a contract error in gating mode.
	SkipSourceIO
	// SkipParse means the file was read but failed to parse as Go source. Always non-fatal.
	SkipParse
)

func (r SkipReason) String() string {
	switch r {
	case SkipSourceIO:
		return "source_io"
	case SkipParse:
		return "parse"
	default:
		return "none"
	}
}

// FileResult is one file's contribution to the overall clone analysis.
type FileResult struct {
	RelPath   string
	ModTime   int64
	Size      int64
	Functions []grouping.FunctionRecord
	Blocks    []grouping.BlockRecord
	Segments  []grouping.SegmentRecord
	// FromCache reports whether this result was rehydrated from a cache hit rather than freshly
	// parsed, so the caller can skip re-storing an unchanged entry.
	FromCache bool
	// Skipped reports whether this file contributed no records at all because of SkipReason; a
	// skipped file is never fatal to the run by itself — AnalyzeTree only ever returns an error for
	// conditions outside any single file (tree walk failure, context cancellation).
	Skipped    bool
	SkipReason SkipReason
	SkipErr    error
}

// Stats summarizes the skipped-file counts from one AnalyzeTree run, mirroring the
// files_skipped_source_io counter callers are expected to surface.
type Stats struct {
	SkippedSourceIO int
	SkippedParse    int
}

// AnalyzeSource parses and analyzes a single already-read source buffer; relPath is used only to
// label the resulting records (grouping.Location.File).
func AnalyzeSource(fset *token.FileSet, relPath string, src []byte, opts Options) (FileResult, error) {
	file, err := parser.ParseFile(fset, relPath, src, parser.ParseComments)
	if err != nil {
		return FileResult{}, fmt.Errorf("parse %q: %w", relPath, err)
	}
	file = normalize.StripLeadingStringStatements(file)
	return analyzeFile(fset, relPath, file, opts), nil
}

// AnalyzeParsedFile analyzes an already-parsed *ast.File (e.g. one handed to us by a
// golang.org/x/tools/go/analysis pass, which has already parsed and type-checked it) instead of
// reading and parsing the source itself.
func AnalyzeParsedFile(fset *token.FileSet, relPath string, file *ast.File, opts Options) FileResult {
	return analyzeFile(fset, relPath, file, opts)
}

func analyzeFile(fset *token.FileSet, relPath string, file *ast.File, opts Options) FileResult {
	res := FileResult{RelPath: relPath}
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		analyzeFunc(fset, relPath, fd, opts, &res)
	}
	return res
}

func analyzeFunc(fset *token.FileSet, relPath string, fd *ast.FuncDecl, opts Options, res *FileResult) {
	irFunc, ok := gofront.Lower(fd)
	if !ok {
		return
	}
	normFunc := normalize.Func(irFunc)
	graph := cfgbuild.Build(normFunc.Body)

	start := fset.Position(fd.Pos()).Line
	end := fset.Position(fd.End()).Line
	loc := end - start + 1

	loc2 := grouping.Location{
		File: relPath, FuncName: fd.Name.Name, StartLine: start, EndLine: end,
		Signature: asthelper.FuncSignaturePreview(fset, fd),
	}

	identity := fingerprint.Function(graph, loc)
	isCtor := isConstructor(fd)
	res.Functions = append(res.Functions, grouping.FunctionRecord{
		Loc:           loc2,
		Identity:      identity,
		LOC:           loc,
		StmtCount:     len(fd.Body.List),
		IsConstructor: isCtor,
	})

	if isCtor {
		// A window entirely inside a constructor carries no clone signal of its own: every
		// constructor's body looks alike by construction, so it is excluded up front rather than
		// generated here and filtered out later in internal/grouping.
		return
	}

	for _, w := range fingerprint.StmtBlocks(normFunc.Body) {
		res.Blocks = append(res.Blocks, grouping.BlockRecord{
			Loc:       loc2,
			Hash:      w.Hash,
			StmtCount: w.End - w.Start,
			Start:     w.Start,
			End:       w.End,
		})
	}

	for _, w := range fingerprint.StmtWindows(normFunc.Body, opts.WindowSize) {
		res.Segments = append(res.Segments, grouping.SegmentRecord{
			Loc:         loc2,
			BlockStart:  w.Start,
			BlockEnd:    w.End,
			SegmentHash: w.Hash,
			SegmentSig:  w.Sig,
		})
	}
}

func isConstructor(fd *ast.FuncDecl) bool {
	if fd.Recv != nil {
		return false
	}
	return strings.HasPrefix(fd.Name.Name, "New")
}

// AnalyzeTree walks root, reads each eligible file, and analyzes it across a bounded worker pool.
// Results are returned in the same deterministic file order sourceio.Walk produced, regardless of
// which worker happened to finish first — the reduction is ordered, the scheduling is not. When c
// is non-nil, a file whose (mtime_ns, size) stat signature matches a cached entry is rehydrated
// from the cache instead of being reparsed, falling open to a fresh parse if the cached entry
// turns out to be corrupt; c itself is read-only here (filling the returned cache for Save is the
// caller's job, since the cache is read once at startup and written once at shutdown, never
// touched concurrently by workers).
//
// A single file's read or parse failure never aborts the run: it is recorded on that file's
// FileResult via Skipped/SkipReason/SkipErr and folded into the returned Stats, so the driver can
// decide — per its own gating mode — whether a source-read failure should become a contract error.
// AnalyzeTree itself only ever returns an error for a condition outside any one file: the initial
// tree walk, or context cancellation.
func AnalyzeTree(ctx context.Context, root string, policy sourceio.Policy, workers int, opts Options, c *cache.Cache) ([]FileResult, Stats, error) {
	files, err := sourceio.Walk(root, policy)
	if err != nil {
		return nil, Stats{}, err
	}

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if c != nil {
				if entry, ok := c.Lookup(f.RelPath, f.ModTime, f.Size); ok {
					if res, err := fileResultFromCache(f.RelPath, entry); err == nil {
						res.ModTime, res.Size, res.FromCache = f.ModTime, f.Size, true
						results[i] = res
						return nil
					}
					// Corrupt cache entry: fall open to a fresh read and parse rather than failing
					// the file, consistent with the cache's fail-open contract.
				}
			}
			src, err := sourceio.Read(f, policy)
			if err != nil {
				results[i] = FileResult{RelPath: f.RelPath, ModTime: f.ModTime, Size: f.Size, Skipped: true, SkipReason: SkipSourceIO, SkipErr: err}
				return nil
			}
			fset := token.NewFileSet()
			res, err := AnalyzeSource(fset, f.RelPath, src, opts)
			if err != nil {
				results[i] = FileResult{RelPath: f.RelPath, ModTime: f.ModTime, Size: f.Size, Skipped: true, SkipReason: SkipParse, SkipErr: err}
				return nil
			}
			res.ModTime, res.Size = f.ModTime, f.Size
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, fmt.Errorf("analyze tree: %w", err)
	}

	var stats Stats
	for _, r := range results {
		switch r.SkipReason {
		case SkipSourceIO:
			stats.SkippedSourceIO++
		case SkipParse:
			stats.SkippedParse++
		}
	}
	return results, stats, nil
}

// CacheEntries converts one file's analysis results into the compact form internal/cache stores
// on disk, for the caller to Store into a fresh cache after a run.
func CacheEntries(res FileResult) ([]cache.FuncEntry, []cache.BlockEntry, []cache.SegmentEntry) {
	funcs := make([]cache.FuncEntry, len(res.Functions))
	for i, f := range res.Functions {
		funcs[i] = cache.FuncEntry{
			FuncName: f.Loc.FuncName, StartLine: f.Loc.StartLine, EndLine: f.Loc.EndLine,
			Signature: f.Loc.Signature, Hash: f.Identity.Hash.String(), LOCBucket: f.Identity.LOCBucket,
			LOC: f.LOC, StmtCount: f.StmtCount, IsConstructor: f.IsConstructor,
		}
	}
	blocks := make([]cache.BlockEntry, len(res.Blocks))
	for i, b := range res.Blocks {
		blocks[i] = cache.BlockEntry{
			FuncName: b.Loc.FuncName, StartLine: b.Loc.StartLine, EndLine: b.Loc.EndLine,
			Hash: b.Hash.String(), StmtCount: b.StmtCount, StmtStart: b.Start, StmtEnd: b.End,
		}
	}
	segs := make([]cache.SegmentEntry, len(res.Segments))
	for i, s := range res.Segments {
		segs[i] = cache.SegmentEntry{
			FuncName: s.Loc.FuncName, StartLine: s.Loc.StartLine, EndLine: s.Loc.EndLine,
			BlockStart: s.BlockStart, BlockEnd: s.BlockEnd,
			SegmentHash: s.SegmentHash.String(), SegmentSig: s.SegmentSig.String(),
		}
	}
	return funcs, blocks, segs
}

// fileResultFromCache rebuilds a FileResult from a cached entry, the inverse of CacheEntries,
// without touching the source file at all.
func fileResultFromCache(relPath string, e cache.FileEntry) (FileResult, error) {
	res := FileResult{RelPath: relPath}
	for _, f := range e.Funcs {
		hash, err := fingerprint.ParseDigest(f.Hash)
		if err != nil {
			return FileResult{}, err
		}
		res.Functions = append(res.Functions, grouping.FunctionRecord{
			Loc: grouping.Location{
				File: relPath, FuncName: f.FuncName, StartLine: f.StartLine, EndLine: f.EndLine,
				Signature: f.Signature,
			},
			Identity:      fingerprint.FunctionIdentity{Hash: hash, LOCBucket: f.LOCBucket},
			LOC:           f.LOC,
			StmtCount:     f.StmtCount,
			IsConstructor: f.IsConstructor,
		})
	}
	for _, b := range e.Blocks {
		hash, err := fingerprint.ParseDigest(b.Hash)
		if err != nil {
			return FileResult{}, err
		}
		res.Blocks = append(res.Blocks, grouping.BlockRecord{
			Loc:       grouping.Location{File: relPath, FuncName: b.FuncName, StartLine: b.StartLine, EndLine: b.EndLine},
			Hash:      hash,
			StmtCount: b.StmtCount,
			Start:     b.StmtStart,
			End:       b.StmtEnd,
		})
	}
	for _, s := range e.Segments {
		segHash, err := fingerprint.ParseDigest(s.SegmentHash)
		if err != nil {
			return FileResult{}, err
		}
		segSig, err := fingerprint.ParseDigest(s.SegmentSig)
		if err != nil {
			return FileResult{}, err
		}
		res.Segments = append(res.Segments, grouping.SegmentRecord{
			Loc:         grouping.Location{File: relPath, FuncName: s.FuncName, StartLine: s.StartLine, EndLine: s.EndLine},
			BlockStart:  s.BlockStart,
			BlockEnd:    s.BlockEnd,
			SegmentHash: segHash,
			SegmentSig:  segSig,
		})
	}
	return res, nil
}
