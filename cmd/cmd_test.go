package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pleno/audit/internal/config"
	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
)

const testBatch = `{
  "services": [
    {"domain": "evil.example", "hasLoginPage": true,
     "nrdResult": {"isNRD": true, "confidence": "high"},
     "typosquatResult": {"isTyposquat": true, "confidence": "high"}}
  ],
  "events": [
    {"type": "network_request", "domain": "evil.example", "timestamp": 1700000000000,
     "details": {"url": "https://cdn.example.net/x.js"}},
    {"type": "ai_prompt_sent", "domain": "evil.example", "timestamp": 1700000001000,
     "details": {"provider": "openai", "model": "gpt-4", "classifications": ["credentials"]}},
    {"type": "cookie_set", "domain": "evil.example", "timestamp": 1700000002000}
  ]
}`

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	if err := os.WriteFile(path, []byte(testBatch), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the root command with args against a fresh database
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDiscoverDB(t *testing.T) {
	tmp := t.TempDir()
	t.Cleanup(func() { dbPath = "" })

	t.Setenv(config.EnvDB, filepath.Join(tmp, "env.db"))
	dbPath = filepath.Join(tmp, "flag.db")
	got, err := DiscoverDB("configured.db")
	if err != nil || got != filepath.Join(tmp, "env.db") {
		t.Errorf("expected env path, got %q (%v)", got, err)
	}

	t.Setenv(config.EnvDB, "")
	got, _ = DiscoverDB("configured.db")
	if got != filepath.Join(tmp, "flag.db") {
		t.Errorf("expected flag path, got %q", got)
	}

	dbPath = ""
	got, _ = DiscoverDB("configured.db")
	if got != "configured.db" {
		t.Errorf("expected configured path, got %q", got)
	}

	nested := filepath.Join(tmp, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmp, dbFileName), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	got, _ = DiscoverDB("")
	if got != filepath.Join(tmp, dbFileName) {
		t.Errorf("expected walk-up to find %s, got %q", filepath.Join(tmp, dbFileName), got)
	}
}

func TestDiscoverDB_XDGFallback(t *testing.T) {
	t.Setenv(config.EnvDB, "")
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)
	t.Chdir(t.TempDir())

	got, err := DiscoverDB("")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(xdg, "pleno", "pleno.db") {
		t.Errorf("expected XDG path, got %q", got)
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Errorf("expected data dir to be created: %v", err)
	}
}

func TestTruncLabel(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a much longer label", 6, "a much..."},
		{"héllo", 2, "h..."},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := truncLabel(tt.in, tt.max); got != tt.want {
			t.Errorf("truncLabel(%q, %d): expected %q, got %q", tt.in, tt.max, tt.want, got)
		}
	}
	if got := truncID("0123456789abcdef"); got != "01234567" {
		t.Errorf("expected 01234567, got %q", got)
	}
}

func TestGraphSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     graphSource
		wantErr bool
	}{
		{"nothing", graphSource{}, true},
		{"inputs", graphSource{inputs: []string{"a.json"}}, false},
		{"har only", graphSource{hars: []string{"a.har"}}, false},
		{"snapshot", graphSource{snapshot: "abc"}, false},
		{"both", graphSource{inputs: []string{"a.json"}, snapshot: "abc"}, true},
	}
	for _, tt := range tests {
		err := tt.src.validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestResolveNodeID(t *testing.T) {
	g := graph.New()
	if err := g.UpsertNode(graph.NewDomainNode("example.com")); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{"domain:example.com", "example.com", "EXAMPLE.com"} {
		n, err := resolveNodeID(g, ref)
		if err != nil || n.ID != "domain:example.com" {
			t.Errorf("%s: expected domain:example.com, got %q (%v)", ref, n.ID, err)
		}
	}
	if _, err := resolveNodeID(g, "missing.org"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestAnalyzeSaveSnapshotsRestore(t *testing.T) {
	t.Setenv(config.EnvDB, filepath.Join(t.TempDir(), "test.db"))
	batch := writeBatch(t)

	out, err := run(t, "analyze", "--input", batch, "--json", "--save")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var report graph.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decoding report: %v\n%s", err, out)
	}
	if report.Stats.TotalNodes != 3 || report.Stats.TotalEdges != 2 {
		t.Errorf("expected 3 nodes and 2 edges, got %d and %d", report.Stats.TotalNodes, report.Stats.TotalEdges)
	}
	if len(report.Paths) == 0 || !report.Paths[0].SensitiveExfil {
		t.Fatalf("expected top path to be sensitive exfiltration, got %+v", report.Paths)
	}
	if report.Stats.RiskDistribution[graph.LevelCritical] != 1 {
		t.Errorf("expected 1 critical node, got %d", report.Stats.RiskDistribution[graph.LevelCritical])
	}

	out, err = run(t, "snapshots", "--json")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	var snaps []store.Snapshot
	if err := json.Unmarshal([]byte(out), &snaps); err != nil {
		t.Fatalf("decoding snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].NodeCount != 3 {
		t.Fatalf("expected one snapshot with 3 nodes, got %+v", snaps)
	}

	out, err = run(t, "restore", snaps[0].ID[:8])
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, snaps[0].ID) || !strings.Contains(out, "Nodes: 3") {
		t.Errorf("unexpected restore output:\n%s", out)
	}

	out, err = run(t, "paths", "--snapshot", snaps[0].ID, "--json", "--limit", "1")
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	var paths []graph.AttackPath
	if err := json.Unmarshal([]byte(out), &paths); err != nil {
		t.Fatalf("decoding paths: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("expected 1 path, got %d", len(paths))
	}
}

func TestReachCommand(t *testing.T) {
	batch := writeBatch(t)

	out, err := run(t, "reach", "evil.example", "--input", batch)
	if err != nil {
		t.Fatalf("reach: %v", err)
	}
	if !strings.Contains(out, "openai") || !strings.Contains(out, "cdn.example.net") {
		t.Errorf("expected both neighbours in output:\n%s", out)
	}

	if _, err := run(t, "reach", "evil.example", "--input", batch, "--edge-kinds", "bogus"); err == nil {
		t.Error("expected error for unknown edge kind")
	}
	reachEdgeKinds = ""
}
