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

// Package grouping turns a flat stream of per-function fingerprints and per-window block/segment
// hashes into ordered clone groups, applying the noise filters that keep groups meaningful (same-
// function rejection, window-overlap suppression, constructor exclusion, minimum size
// thresholds) and the report-only segment merge/boilerplate suppression pass.
package grouping

import (
	"sort"

	"github.com/codeclone-go/codeclone/internal/fingerprint"
	"github.com/codeclone-go/codeclone/util/orderedmap"
)

// Location identifies where a clone member was found.
type Location struct {
	File      string
	FuncName  string
	StartLine int
	EndLine   int
	// Signature is a short human-readable preview of the function's signature (empty for block
	// and segment members, which have no signature of their own), shown in report output
	// alongside the bare file:line so a reader can recognize the member without opening the file.
	Signature string
}

// FunctionRecord is one analyzed function, ready for grouping.
type FunctionRecord struct {
	Loc           Location
	Identity      fingerprint.FunctionIdentity
	LOC           int
	StmtCount     int
	IsConstructor bool
}

// BlockRecord is one analyzed statement-window block, ready for grouping.
type BlockRecord struct {
	Loc       Location
	Hash      fingerprint.Digest
	StmtCount int
	// Start and End are the [Start, End) statement-index range the window covers within its
	// function's top-level normalized body, used only for overlap suppression.
	Start, End    int
	IsConstructor bool
}

// SegmentRecord is one sliding window over a function's blocks, ready for grouping.
type SegmentRecord struct {
	Loc         Location
	BlockStart  int
	BlockEnd    int
	SegmentHash fingerprint.Digest
	SegmentSig  fingerprint.Digest
}

// Thresholds configures the noise filters; zero values disable the corresponding filter.
type Thresholds struct {
	MinFunctionLOC   int
	MinBlockStmts    int
	MinSegmentBlocks int
	// BoilerplateMembers is the member count at or above which a group is flagged (not removed)
	// as likely boilerplate in the report.
	BoilerplateMembers int
}

// Group is one clone group: two or more locations sharing the same key.
type Group struct {
	Key         string
	Members     []Location
	Boilerplate bool
}

// Functions groups FunctionRecords by (fingerprint, loc_bucket) identity. Constructors and
// functions below MinFunctionLOC are excluded before grouping; groups with fewer than two
// surviving members are dropped (a clone needs at least two instances).
func Functions(records []FunctionRecord, th Thresholds) []Group {
	buckets := orderedmap.New[string, []Location]()
	for _, r := range records {
		if r.IsConstructor {
			continue
		}
		if th.MinFunctionLOC > 0 && r.LOC < th.MinFunctionLOC {
			continue
		}
		key := r.Identity.Hash.String() + "#" + itoa(r.Identity.LOCBucket)
		buckets.Store(key, append(buckets.Value(key), r.Loc))
	}
	return finalize(buckets, th.BoilerplateMembers)
}

// Blocks groups BlockRecords by block hash, applying noise filters in order: (1) same-function
// rejection drops a pair of blocks found in the same function (a function is never a clone of its
// own code for the purposes of block grouping); (2) overlap suppression keeps only the largest
// surviving window at a given site, so a 2-statement window entirely inside an already-reported
// 4-statement window at the same location doesn't also get reported as its own, redundant clone;
// (3) constructor exclusion drops windows entirely inside a constructor function, which carries no
// clone signal of its own; (4) the minimum-statement-count threshold drops anything left too small
// to be meaningful.
func Blocks(records []BlockRecord, th Thresholds) []Group {
	records = suppressBlockOverlap(records)

	buckets := orderedmap.New[string, []Location]()
	for _, r := range records {
		if r.IsConstructor {
			continue
		}
		if th.MinBlockStmts > 0 && r.StmtCount < th.MinBlockStmts {
			continue
		}
		key := r.Hash.String()
		locs := buckets.Value(key)
		if containsFunc(locs, r.Loc) {
			continue
		}
		buckets.Store(key, append(locs, r.Loc))
	}
	return finalize(buckets, th.BoilerplateMembers)
}

// suppressBlockOverlap keeps, per function, only the largest window covering a given statement
// range: windows are sorted longest-first so a wide window claims its range before any narrower,
// fully-contained window is considered, and anything overlapping an already-claimed range is
// dropped rather than reported as a second, redundant clone site.
func suppressBlockOverlap(records []BlockRecord) []BlockRecord {
	sorted := append([]BlockRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := sorted[i].End-sorted[i].Start, sorted[j].End-sorted[j].Start
		if li != lj {
			return li > lj
		}
		if sorted[i].Loc.FuncName != sorted[j].Loc.FuncName {
			return sorted[i].Loc.FuncName < sorted[j].Loc.FuncName
		}
		return sorted[i].Start < sorted[j].Start
	})

	type claimedRange struct{ start, end int }
	claimed := make(map[string][]claimedRange)
	out := make([]BlockRecord, 0, len(sorted))
	for _, r := range sorted {
		key := r.Loc.File + "#" + r.Loc.FuncName
		overlaps := false
		for _, c := range claimed[key] {
			if r.Start < c.end && c.start < r.End {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		claimed[key] = append(claimed[key], claimedRange{r.Start, r.End})
		out = append(out, r)
	}
	return out
}

// Segments groups SegmentRecords twice (once by order-sensitive SegmentHash, once by order-
// insensitive SegmentSig) after suppressing overlapping windows within the same function (only
// the earliest-starting window per function per group survives) and dropping windows narrower
// than MinSegmentBlocks.
func Segments(records []SegmentRecord, th Thresholds) (ordered, unordered []Group) {
	filtered := make([]SegmentRecord, 0, len(records))
	for _, r := range records {
		if th.MinSegmentBlocks > 0 && (r.BlockEnd-r.BlockStart+1) < th.MinSegmentBlocks {
			continue
		}
		filtered = append(filtered, r)
	}
	filtered = suppressOverlap(filtered)

	orderedBuckets := orderedmap.New[string, []Location]()
	unorderedBuckets := orderedmap.New[string, []Location]()
	for _, r := range filtered {
		ok := r.SegmentHash.String()
		uk := r.SegmentSig.String()
		orderedBuckets.Store(ok, append(orderedBuckets.Value(ok), r.Loc))
		unorderedBuckets.Store(uk, append(unorderedBuckets.Value(uk), r.Loc))
	}
	return finalize(orderedBuckets, th.BoilerplateMembers), finalize(unorderedBuckets, th.BoilerplateMembers)
}

// suppressOverlap keeps, per (function, bucket-not-yet-known) pair, only windows that do not
// overlap a previously kept window in the same function, preferring the earliest-starting window
// — this is the "overlap suppression" noise filter; it runs before bucketing by hash because
// overlap is a property of position, not of which group a window ends up in.
func suppressOverlap(records []SegmentRecord) []SegmentRecord {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Loc.FuncName != records[j].Loc.FuncName {
			return records[i].Loc.FuncName < records[j].Loc.FuncName
		}
		return records[i].BlockStart < records[j].BlockStart
	})

	lastEnd := make(map[string]int)
	out := make([]SegmentRecord, 0, len(records))
	for _, r := range records {
		key := r.Loc.File + "#" + r.Loc.FuncName
		if end, ok := lastEnd[key]; ok && r.BlockStart <= end {
			continue
		}
		lastEnd[key] = r.BlockEnd
		out = append(out, r)
	}
	return out
}

func containsFunc(locs []Location, loc Location) bool {
	for _, l := range locs {
		if l.File == loc.File && l.FuncName == loc.FuncName {
			return true
		}
	}
	return false
}

func finalize(buckets *orderedmap.OrderedMap[string, []Location], boilerplateAt int) []Group {
	var groups []Group
	for _, p := range buckets.Pairs {
		if len(p.Value) < 2 {
			continue
		}
		g := Group{Key: p.Key, Members: p.Value}
		if boilerplateAt > 0 && len(p.Value) >= boilerplateAt {
			g.Boilerplate = true
		}
		groups = append(groups, g)
	}
	return groups
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
