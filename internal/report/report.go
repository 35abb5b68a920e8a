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

// Package report serializes clone-group results deterministically: sorted file lists, sorted
// group keys, a fixed per-item field order, and a groups_split section separating groups new
// since the baseline from ones already known to it.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/codeclone-go/codeclone/internal/grouping"
)

// Item is one clone-group member, laid out in a fixed field order (group_item_layout) so two
// reports over identical input are byte-identical.
type Item struct {
	File      string `json:"file"`
	Func      string `json:"func"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Signature string `json:"signature,omitempty"`
}

// GroupReport is one clone group ready for serialization.
type GroupReport struct {
	Key         string `json:"key"`
	Members     []Item `json:"members"`
	Boilerplate bool   `json:"boilerplate"`
}

// Split partitions a group's keys into ones absent from the baseline ("new") and ones already
// present ("known"), mirroring internal/baseline.Diff's current-minus-baseline semantics.
type Split struct {
	New   []string `json:"new"`
	Known []string `json:"known"`
}

// Report is the full deterministic output document for one analysis run.
type Report struct {
	Files                  []string      `json:"files"`
	FunctionGroups         []GroupReport `json:"function_groups"`
	BlockGroups            []GroupReport `json:"block_groups"`
	SegmentGroupsOrdered   []GroupReport `json:"segment_groups_ordered"`
	SegmentGroupsUnordered []GroupReport `json:"segment_groups_unordered"`
	FunctionGroupsSplit    Split         `json:"function_groups_split"`
	BlockGroupsSplit       Split         `json:"block_groups_split"`
}

// Build assembles a Report from already-computed groups. files need not be pre-sorted; Build
// sorts a copy. knownFunctionKeys/knownBlockKeys are the baseline's existing group keys, used
// only to compute the new/known split.
func Build(files []string, functionGroups, blockGroups, segOrdered, segUnordered []grouping.Group, knownFunctionKeys, knownBlockKeys map[string]bool) Report {
	sortedFiles := append([]string(nil), files...)
	sort.Strings(sortedFiles)

	r := Report{
		Files:                  sortedFiles,
		FunctionGroups:         toGroupReports(functionGroups),
		BlockGroups:            toGroupReports(blockGroups),
		SegmentGroupsOrdered:   toGroupReports(segOrdered),
		SegmentGroupsUnordered: toGroupReports(segUnordered),
		FunctionGroupsSplit:    split(functionGroups, knownFunctionKeys),
		BlockGroupsSplit:       split(blockGroups, knownBlockKeys),
	}
	return r
}

func split(groups []grouping.Group, known map[string]bool) Split {
	s := Split{New: []string{}, Known: []string{}}
	for _, g := range groups {
		if known[g.Key] {
			s.Known = append(s.Known, g.Key)
		} else {
			s.New = append(s.New, g.Key)
		}
	}
	sort.Strings(s.New)
	sort.Strings(s.Known)
	return s
}

func toGroupReports(groups []grouping.Group) []GroupReport {
	out := make([]GroupReport, 0, len(groups))
	for _, g := range groups {
		items := make([]Item, len(g.Members))
		for i, m := range g.Members {
			items[i] = Item{File: m.File, Func: m.FuncName, StartLine: m.StartLine, EndLine: m.EndLine, Signature: m.Signature}
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].File != items[j].File {
				return items[i].File < items[j].File
			}
			return items[i].StartLine < items[j].StartLine
		})
		out = append(out, GroupReport{Key: g.Key, Members: items, Boilerplate: g.Boilerplate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MarshalJSON renders the report as compact, deterministic JSON (no HTML-escaping, stable key
// order via the struct's field order and the sorting Build already performed).
func MarshalJSON(r Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// RenderText renders a short human-facing summary, independent of and in addition to the JSON
// report — useful for terminal output where a CI log is being read by a person, not a machine.
func RenderText(r Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "codeclone: %d files analyzed\n", len(r.Files))
	fmt.Fprintf(&sb, "function clone groups: %d (%d new)\n", len(r.FunctionGroups), len(r.FunctionGroupsSplit.New))
	fmt.Fprintf(&sb, "block clone groups: %d (%d new)\n", len(r.BlockGroups), len(r.BlockGroupsSplit.New))
	fmt.Fprintf(&sb, "segment clone groups: %d ordered, %d unordered\n", len(r.SegmentGroupsOrdered), len(r.SegmentGroupsUnordered))
	newFunctionGroups := make(map[string]GroupReport, len(r.FunctionGroups))
	for _, g := range r.FunctionGroups {
		newFunctionGroups[g.Key] = g
	}
	for _, key := range r.FunctionGroupsSplit.New {
		fmt.Fprintf(&sb, "  new function clone group %s\n", key)
		for _, m := range newFunctionGroups[key].Members {
			fmt.Fprintf(&sb, "    %s:%d %s\n", m.File, m.StartLine, m.Signature)
		}
	}
	for _, key := range r.BlockGroupsSplit.New {
		fmt.Fprintf(&sb, "  new block clone group %s\n", key)
	}
	return sb.String()
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>codeclone report</title></head>
<body>
<h1>codeclone report</h1>
<p>{{len .Files}} files analyzed</p>
<h2>Function clone groups ({{len .FunctionGroupsSplit.New}} new of {{len .FunctionGroups}})</h2>
<ul>
{{range .FunctionGroups}}<li><code>{{.Key}}</code>{{if .Boilerplate}} (boilerplate){{end}}<ul>
{{range .Members}}<li>{{.File}}:{{.StartLine}} {{.Func}} {{.Signature}}</li>
{{end}}</ul></li>
{{end}}</ul>
<h2>Block clone groups ({{len .BlockGroupsSplit.New}} new of {{len .BlockGroups}})</h2>
<ul>
{{range .BlockGroups}}<li><code>{{.Key}}</code>{{if .Boilerplate}} (boilerplate){{end}}<ul>
{{range .Members}}<li>{{.File}}:{{.StartLine}}</li>
{{end}}</ul></li>
{{end}}</ul>
</body></html>
`))

// RenderHTML renders the report as a standalone HTML document for browsing; html/template is used
// rather than text/template so member file paths and signatures are escaped against injection even
// though the input is sourced from the local tree being scanned, not an untrusted network input.
func RenderHTML(r Report) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return buf.String(), nil
}
