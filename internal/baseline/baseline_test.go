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

package baseline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclone-go/codeclone/internal/baseline"
)

func TestBuildLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	functions := map[string][]string{"h1": {"a.go:F:1"}}
	blocks := map[string][]string{"h2": {"b.go:G:1"}}

	f, err := baseline.Build(functions, blocks, "go1.22")
	require.NoError(t, err)
	require.NoError(t, baseline.Write(path, f))

	loaded, status, err := baseline.Load(path, "go1.22", 0)
	require.NoError(t, err)
	require.Equal(t, baseline.TrustOK, status)
	require.Equal(t, f.Meta.PayloadSHA256, loaded.Meta.PayloadSHA256)
	require.Equal(t, functions, loaded.Clones.Functions)
	require.Equal(t, baseline.GeneratorName, loaded.Meta.Generator.Name)
}

func TestLoadMissingIsNotAnError(t *testing.T) {
	t.Parallel()

	f, status, err := baseline.Load(filepath.Join(t.TempDir(), "nope.json"), "go1.22", 0)
	require.NoError(t, err)
	require.Equal(t, baseline.TrustMissing, status)
	require.Nil(t, f)
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{}, map[string][]string{}, "go1.22")
	require.NoError(t, err)
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 4)
	require.Error(t, err)
	require.Equal(t, baseline.TrustTooLarge, status)
}

func TestLoadRejectsTamperedPayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{"h1": {"a.go:F:1"}}, nil, "go1.22")
	require.NoError(t, err)
	f.Clones.Functions["h1"] = append(f.Clones.Functions["h1"], "tampered.go:X:1")
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustIntegrityFailed, status)
}

func TestLoadRejectsMissingIntegrityHash(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{"h1": {"a.go:F:1"}}, map[string][]string{}, "go1.22")
	require.NoError(t, err)
	f.Meta.PayloadSHA256 = ""
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustIntegrityMissing, status)
}

func TestLoadRejectsWrongSchemaVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{}, map[string][]string{}, "go1.22")
	require.NoError(t, err)
	f.Meta.SchemaVersion = baseline.SchemaVersion + 1
	// The schema gate must fire before the hash gate is even consulted, so no re-signing is done
	// here: the payload itself is untouched.
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustMismatchSchemaVersion, status)
}

func TestLoadRejectsWrongFingerprintVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{}, map[string][]string{}, "go1.22")
	require.NoError(t, err)
	f.Meta.FingerprintVersion = baseline.FingerprintVersion + 1
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustMismatchFingerprintVersion, status)
}

func TestLoadRejectsWrongToolchainTag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{}, map[string][]string{}, "go1.21")
	require.NoError(t, err)
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustMismatchPythonVersion, status)
}

func TestLoadRejectsForeignGenerator(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	f, err := baseline.Build(map[string][]string{}, map[string][]string{}, "go1.22")
	require.NoError(t, err)
	f.Meta.Generator.Name = "some-other-tool"
	require.NoError(t, baseline.Write(path, f))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustGeneratorMismatch, status)
}

func TestLoadRejectsLegacyFlatShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")
	legacy := `{"schema_version":1,"payload":{"functions":{},"blocks":{}},"payload_hash":"deadbeef"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustMissingFields, status)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustInvalidJSON, status)
}

func TestLoadRejectsWrongFieldType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")
	malformed := `{"meta":{"schema_version":"one"},"clones":{"functions":{},"blocks":{}}}`
	require.NoError(t, os.WriteFile(path, []byte(malformed), 0o600))

	_, status, err := baseline.Load(path, "go1.22", 0)
	require.Error(t, err)
	require.Equal(t, baseline.TrustInvalidType, status)
}

func TestComputeDiffOnlyReportsNewGroups(t *testing.T) {
	t.Parallel()

	base := baseline.Payload{
		Functions: map[string][]string{"h1": {"a.go:F:1"}},
		Blocks:    map[string][]string{},
	}
	current := baseline.Payload{
		Functions: map[string][]string{
			"h1": {"a.go:F:1"},
			"h2": {"b.go:G:1"},
		},
		Blocks: map[string][]string{},
	}

	diff := baseline.ComputeDiff(current, base)
	require.Len(t, diff.NewFunctions, 1)
	require.Contains(t, diff.NewFunctions, "h2")
}

func TestCanonicalJSONSortsMemberOrderWithinAKey(t *testing.T) {
	t.Parallel()

	p1 := baseline.Payload{Functions: map[string][]string{"h": {"b.go:G:1", "a.go:F:1"}}, Blocks: map[string][]string{}}
	p2 := baseline.Payload{Functions: map[string][]string{"h": {"a.go:F:1", "b.go:G:1"}}, Blocks: map[string][]string{}}

	j1, err := baseline.CanonicalJSON(p1)
	require.NoError(t, err)
	j2, err := baseline.CanonicalJSON(p2)
	require.NoError(t, err)
	require.Equal(t, string(j1), string(j2))
}
