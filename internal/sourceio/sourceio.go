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

// Package sourceio walks a source tree deterministically, applies the policy blocklist (built-in
// defaults plus an optional YAML override), and reads files under a size bound. It also provides
// cwd-relative path rendering for human-facing output, since every caller needing it is already
// holding a sourceio-discovered path.
package sourceio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultBlocklist is the built-in set of directory names never walked into.
var defaultBlocklist = []string{
	".git", "vendor", "node_modules", "testdata", ".idea", ".vscode",
}

// Policy is the file-selection policy applied while walking a tree.
type Policy struct {
	// Blocklist is the set of directory basenames to skip, defaults ∪ any YAML-loaded extras.
	Blocklist map[string]bool
	// MaxFileBytes bounds how large a single source file may be before it's skipped outright.
	MaxFileBytes int64
}

// DefaultPolicy returns the built-in policy with no YAML extension applied.
func DefaultPolicy() Policy {
	p := Policy{Blocklist: make(map[string]bool, len(defaultBlocklist)), MaxFileBytes: 2 << 20}
	for _, d := range defaultBlocklist {
		p.Blocklist[d] = true
	}
	return p
}

// yamlPolicy is the on-disk shape of an optional policy-blocklist override file.
type yamlPolicy struct {
	ExtraBlockedDirs []string `yaml:"extra_blocked_dirs"`
	MaxFileBytes     int64    `yaml:"max_file_bytes"`
}

// LoadPolicyFile extends base with directories/limits declared in an optional YAML file. A
// missing path is not an error — the built-in policy is used as-is, exactly as an absent cache or
// baseline file is treated as "nothing to trust yet" rather than a contract violation.
func LoadPolicyFile(base Policy, path string) (Policy, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read policy file %q: %w", path, err)
	}
	var y yamlPolicy
	if err := yaml.Unmarshal(data, &y); err != nil {
		return base, fmt.Errorf("parse policy file %q: %w", path, err)
	}
	for _, d := range y.ExtraBlockedDirs {
		base.Blocklist[d] = true
	}
	if y.MaxFileBytes > 0 {
		base.MaxFileBytes = y.MaxFileBytes
	}
	return base, nil
}

// File is one discovered, size-gated source file.
type File struct {
	AbsPath string
	RelPath string // relative to the walked root, using forward slashes
	Size    int64
	ModTime int64 // unix nanoseconds, for cache stat-signature gating
}

// Walk deterministically discovers every ".go" file under root not excluded by policy, skipping
// files over MaxFileBytes. The returned slice is sorted by RelPath, giving every downstream
// consumer (worker pool dispatch, report serialization) a single stable ordering to rely on.
func Walk(root string, policy Policy) ([]File, error) {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && policy.Blocklist[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if policy.MaxFileBytes > 0 && info.Size() > policy.MaxFileBytes {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		files = append(files, File{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Read loads a file's contents, re-checking the size bound (a file may have grown between Walk
// and Read under concurrent modification — we fail closed rather than silently analyzing a
// truncated read).
func Read(f File, policy Policy) ([]byte, error) {
	data, err := os.ReadFile(f.AbsPath) //nolint:gosec // path came from a prior Walk over root
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", f.RelPath, err)
	}
	if policy.MaxFileBytes > 0 && int64(len(data)) > policy.MaxFileBytes {
		return nil, fmt.Errorf("read %q: grew past size bound after walk", f.RelPath)
	}
	return data, nil
}

// RelToCwd returns filename relative to the process's current working directory, or filename
// itself if it isn't a descendant of cwd. Used only for human-facing text output.
func RelToCwd(filename string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return filename
	}
	rel, err := filepath.Rel(cwd, filename)
	if err != nil {
		return filename
	}
	return rel
}
