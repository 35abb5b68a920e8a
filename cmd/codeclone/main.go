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

// codeclone scans a Go source tree for structurally duplicated functions, blocks and statement
// segments, gating CI on any clone group not already present in a checked-in baseline.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/codeclone-go/codeclone/config"
	"github.com/codeclone-go/codeclone/internal/baseline"
	"github.com/codeclone-go/codeclone/internal/cache"
	"github.com/codeclone-go/codeclone/internal/grouping"
	"github.com/codeclone-go/codeclone/internal/pipeline"
	"github.com/codeclone-go/codeclone/internal/report"
	"github.com/codeclone-go/codeclone/internal/sourceio"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "codeclone: %v\n", err)
		return config.ExitContractError
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
		fmt.Fprintf(stderr, "codeclone: create cache directory: %v\n", err)
		return config.ExitContractError
	}

	policy, err := sourceio.LoadPolicyFile(sourceio.DefaultPolicy(), cfg.PolicyFile)
	if err != nil {
		fmt.Fprintf(stderr, "codeclone: %v\n", err)
		return config.ExitContractError
	}

	toolchainTag := runtime.Version()
	fileCache := cache.Load(cfg.CachePath, toolchainTag, baseline.FingerprintVersion, cfg.CacheMaxBytes*1024*1024)

	results, stats, err := pipeline.AnalyzeTree(context.Background(), cfg.Root, policy, cfg.Processes, pipeline.Options{WindowSize: cfg.SegmentWindowSize}, fileCache)
	if err != nil {
		fmt.Fprintf(stderr, "codeclone: %v\n", err)
		return config.ExitInternalError
	}
	if !cfg.Quiet {
		for _, r := range results {
			if !r.Skipped {
				continue
			}
			fmt.Fprintf(stderr, "codeclone: skipped %s (%s): %v\n", r.RelPath, r.SkipReason, r.SkipErr)
		}
	}
	// Source-read failures are only a contract error under gating; a parse failure is never fatal
	// regardless of mode.
	if cfg.FailOnNew && stats.SkippedSourceIO > 0 {
		fmt.Fprintf(stderr, "codeclone: %d file(s) unreadable under gating mode (files_skipped_source_io)\n", stats.SkippedSourceIO)
		return config.ExitContractError
	}

	newCache := cache.New(toolchainTag, baseline.FingerprintVersion)
	for _, r := range results {
		if r.Skipped {
			continue
		}
		funcs, blocks, segs := pipeline.CacheEntries(r)
		newCache.Store(r.RelPath, r.ModTime, r.Size, funcs, blocks, segs)
	}
	cacheCompressBytes := cfg.CacheMaxBytes * 1024 * 1024
	if cfg.NoCacheCompress {
		cacheCompressBytes = 0
	}
	if err := cache.Save(cfg.CachePath, newCache, cacheCompressBytes); err != nil {
		fmt.Fprintf(stderr, "codeclone: write cache: %v\n", err)
		return config.ExitContractError
	}

	var files []string
	var functions []grouping.FunctionRecord
	var blocks []grouping.BlockRecord
	var segments []grouping.SegmentRecord
	for _, r := range results {
		if r.Skipped {
			continue
		}
		files = append(files, r.RelPath)
		functions = append(functions, r.Functions...)
		blocks = append(blocks, r.Blocks...)
		segments = append(segments, r.Segments...)
	}

	th := grouping.Thresholds{
		MinFunctionLOC:     cfg.MinLOC,
		MinBlockStmts:      cfg.MinStmt,
		MinSegmentBlocks:   cfg.MinSegmentBlocks,
		BoilerplateMembers: cfg.BoilerplateMembers,
	}
	functionGroups := grouping.Functions(functions, th)
	blockGroups := grouping.Blocks(blocks, th)
	segOrdered, segUnordered := grouping.Segments(segments, th)

	currentPayload := baseline.Payload{
		Functions:          groupsToPayloadSection(functionGroups),
		Blocks:             groupsToPayloadSection(blockGroups),
		FingerprintVersion: baseline.FingerprintVersion,
		PythonTag:          toolchainTag,
	}

	if cfg.UpdateBaseline {
		bf, err := baseline.Build(currentPayload.Functions, currentPayload.Blocks, toolchainTag)
		if err != nil {
			fmt.Fprintf(stderr, "codeclone: %v\n", err)
			return config.ExitInternalError
		}
		if err := baseline.Write(cfg.BaselinePath, bf); err != nil {
			fmt.Fprintf(stderr, "codeclone: %v\n", err)
			return config.ExitContractError
		}
	}

	knownFunctionKeys := map[string]bool{}
	knownBlockKeys := map[string]bool{}
	gateFailed := false
	newGroupCount := 0

	baseFile, status, err := baseline.Load(cfg.BaselinePath, toolchainTag, cfg.BaselineMaxBytes*1024*1024)
	switch status {
	case baseline.TrustOK:
		for k := range baseFile.Clones.Functions {
			knownFunctionKeys[k] = true
		}
		for k := range baseFile.Clones.Blocks {
			knownBlockKeys[k] = true
		}
		basePayload := baseline.Payload{
			Functions:          baseFile.Clones.Functions,
			Blocks:             baseFile.Clones.Blocks,
			FingerprintVersion: baseFile.Meta.FingerprintVersion,
			PythonTag:          baseFile.Meta.PythonTag,
		}
		diff := baseline.ComputeDiff(currentPayload, basePayload)
		newGroupCount = len(diff.NewFunctions) + len(diff.NewBlocks)
		if cfg.FailOnNew && newGroupCount > 0 {
			gateFailed = true
		}
	case baseline.TrustMissing:
		if err != nil {
			fmt.Fprintf(stderr, "codeclone: %v\n", err)
			return config.ExitContractError
		}
		// No baseline yet: nothing to gate against. A first-run repo is not a gating failure.
	default:
		if cfg.FailOnNew {
			fmt.Fprintf(stderr, "codeclone: baseline untrusted (%s): %v\n", status, err)
			return config.ExitContractError
		}
		if !cfg.Quiet {
			fmt.Fprintf(stderr, "codeclone: baseline untrusted (%s), diffing against an empty baseline: %v\n", status, err)
		}
	}

	if cfg.FailThreshold >= 0 && newGroupCount > cfg.FailThreshold {
		gateFailed = true
	}

	rep := report.Build(files, functionGroups, blockGroups, segOrdered, segUnordered, knownFunctionKeys, knownBlockKeys)

	if err := writeReports(cfg, rep, stdout); err != nil {
		fmt.Fprintf(stderr, "codeclone: %v\n", err)
		return config.ExitContractError
	}

	if gateFailed {
		return config.ExitGatingFailure
	}
	return config.ExitSuccess
}

func groupsToPayloadSection(groups []grouping.Group) map[string][]string {
	out := make(map[string][]string, len(groups))
	for _, g := range groups {
		members := make([]string, len(g.Members))
		for i, m := range g.Members {
			members[i] = fmt.Sprintf("%s:%s:%d", m.File, m.FuncName, m.StartLine)
		}
		out[g.Key] = members
	}
	return out
}

// writeReports writes every report format the caller asked for (--html/--json/--text); when none
// were given, a text rendering goes to stdout so the tool is still useful run bare.
func writeReports(cfg *config.Config, rep report.Report, stdout *os.File) error {
	if !cfg.AnyReportPath() {
		_, err := stdout.WriteString(report.RenderText(rep))
		return err
	}
	if cfg.JSONPath != "" {
		data, err := report.MarshalJSON(rep)
		if err != nil {
			return err
		}
		if err := writeFile(cfg.JSONPath, data); err != nil {
			return err
		}
	}
	if cfg.TextPath != "" {
		if err := writeFile(cfg.TextPath, []byte(report.RenderText(rep))); err != nil {
			return err
		}
	}
	if cfg.HTMLPath != "" {
		html, err := report.RenderHTML(rep)
		if err != nil {
			return err
		}
		if err := writeFile(cfg.HTMLPath, []byte(html)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // report file, not a secret
		return fmt.Errorf("write report %q: %w", path, err)
	}
	return nil
}
