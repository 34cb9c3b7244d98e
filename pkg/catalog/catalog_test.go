package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

const employeeCatalog = `version: "1.0"
name: hr
detectors:
  - id: employee-id
    name: Employee ID
    pattern: '/\bEMP-\d{6}\b/'
    confidence: 70
    sensitive_type_id: employee-id
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoad_ShippedCatalog(t *testing.T) {
	set, err := Load(filepath.Join("..", "..", "configs", "detectors"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantSimple := []string{"employee-id", "passport-number"}
	if len(set.Detectors) != len(wantSimple) {
		t.Fatalf("Expected %d detectors, got %d", len(wantSimple), len(set.Detectors))
	}
	for i, id := range wantSimple {
		if set.Detectors[i].ID != id {
			t.Errorf("Detectors[%d] = %s, want %s", i, set.Detectors[i].ID, id)
		}
		if set.Detectors[i].Source != classify.SourceManual {
			t.Errorf("Detectors[%d] source = %s, want manual", i, set.Detectors[i].Source)
		}
	}

	// financial.yaml sorts before pii.yaml
	wantRulePack := []string{"credit-card-with-brand", "swift-code", "us-ssn-with-context"}
	if len(set.RulePack) != len(wantRulePack) {
		t.Fatalf("Expected %d rule-pack detectors, got %d", len(wantRulePack), len(set.RulePack))
	}
	for i, id := range wantRulePack {
		if set.RulePack[i].ID != id {
			t.Errorf("RulePack[%d] = %s, want %s", i, set.RulePack[i].ID, id)
		}
	}

	e := classify.NewEngine()
	if invalid := e.FindInvalidDetectors(set); len(invalid) != 0 {
		t.Errorf("Expected shipped catalog to be valid, got %+v", invalid)
	}

	result, err := e.Classify(context.Background(), "SSN: 123-45-6789, badge EMP-004211", set)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	fired := make(map[string]bool)
	for _, m := range result.Matches {
		fired[m.ID] = true
	}
	for _, id := range []string{"employee-id", "us-ssn-with-context"} {
		if !fired[id] {
			t.Errorf("Expected %s to fire, matches: %+v", id, result.Matches)
		}
	}
}

func TestLoadDir_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", employeeCatalog)
	writeFile(t, dir, "notes.txt", "not a catalog")
	writeFile(t, dir, ".hidden.yaml", "::: invalid")
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 catalog file, got %d", len(files))
	}
	if files[0].Name != "hr" || files[0].Path != filepath.Join(dir, "b.yml") {
		t.Errorf("Unexpected file: name=%s path=%s", files[0].Name, files[0].Path)
	}
}

func TestLoadFile_EnvExpansion(t *testing.T) {
	t.Setenv("EMPLOYEE_CONFIDENCE", "80")
	dir := t.TempDir()
	path := writeFile(t, dir, "hr.yaml", strings.Replace(employeeCatalog,
		"confidence: 70", "confidence: ${EMPLOYEE_CONFIDENCE:-70}", 1))

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := f.Detectors[0].Confidence.Resolve(); got != 80 {
		t.Errorf("Expected confidence 80, got %d", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			files:   map[string]string{"a.yaml": "detectors: [unclosed"},
			wantErr: "parsing catalog file",
		},
		{
			name:    "duplicate detector id",
			files:   map[string]string{"a.yaml": employeeCatalog, "b.yaml": employeeCatalog},
			wantErr: `detector id "employee-id" already defined`,
		},
		{
			name:    "unknown preset",
			files:   map[string]string{"a.yaml": "presets: [sample-nope]\n"},
			wantErr: `unknown preset "sample-nope"`,
		},
		{
			name:    "missing id",
			files:   map[string]string{"a.yaml": "detectors:\n  - name: nameless\n    pattern: abc\n"},
			wantErr: "has no id",
		},
		{
			name: "duplicate rule-pack id",
			files: map[string]string{"a.yaml": `rule_pack:
  - id: dup
    sit_id: s1
    pattern:
      - type: keyword
        entries: [a]
  - id: dup
    sit_id: s2
    pattern:
      - type: keyword
        entries: [b]
`},
			wantErr: `rule-pack detector id "dup" already defined`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestMerge_Presets(t *testing.T) {
	files := []File{
		{Path: "a.yaml", Presets: []string{"sample-email"}, Detectors: []classify.Detector{{ID: "custom", Pattern: classify.PatternDescriptor{Source: "x"}}}},
	}
	set, err := Merge(files)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(set.Detectors) != 2 {
		t.Fatalf("Expected 2 detectors, got %d", len(set.Detectors))
	}
	if set.Detectors[0].ID != "sample-email" || set.Detectors[0].Source != classify.SourceSample {
		t.Errorf("Expected sample preset first, got %+v", set.Detectors[0])
	}
	if set.Detectors[1].Source != classify.SourceManual {
		t.Errorf("Expected manual source, got %s", set.Detectors[1].Source)
	}
}

func TestCatalog_ReloadKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hr.yaml", employeeCatalog)

	c, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n := len(c.Current().Detectors); n != 1 {
		t.Fatalf("Expected 1 detector, got %d", n)
	}

	var reloaded int
	c.OnReload(func(classify.DetectorSet) { reloaded++ })

	if err := os.WriteFile(path, []byte("detectors: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("Expected reload error")
	}
	if n := len(c.Current().Detectors); n != 1 {
		t.Errorf("Expected previous detectors to be kept, got %d", n)
	}
	if reloaded != 0 {
		t.Errorf("Expected no reload callbacks on failure, got %d", reloaded)
	}

	writeFile(t, dir, "extra.yaml", "presets: [sample-ssn]\n")
	if err := os.WriteFile(path, []byte(employeeCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n := len(c.Current().Detectors); n != 2 {
		t.Errorf("Expected 2 detectors after reload, got %d", n)
	}
	if reloaded != 1 {
		t.Errorf("Expected 1 reload callback, got %d", reloaded)
	}
}

func TestNewStatic(t *testing.T) {
	set := classify.DetectorSet{Detectors: classify.SamplePresets()}
	c := NewStatic(set)
	if err := c.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if c.Current().Len() != set.Len() {
		t.Errorf("Expected static set to be served")
	}
	if c.Dir() != "" {
		t.Errorf("Expected no directory, got %q", c.Dir())
	}
	if err := NewWatcher(c, 0, nil).Watch(context.Background()); err == nil {
		t.Error("Expected watching a static catalog to fail")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hr.yaml", employeeCatalog)

	c, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reloads := make(chan classify.DetectorSet, 16)
	c.OnReload(func(set classify.DetectorSet) { reloads <- set })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWatcher(c, 20*time.Millisecond, nil).Watch(ctx)
	}()

	// The watcher may not be registered yet, so keep touching the file
	// until a reload comes through.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var got classify.DetectorSet
wait:
	for {
		select {
		case got = <-reloads:
			break wait
		case <-ticker.C:
			writeFile(t, dir, "more.yaml", "presets: [sample-ipv4]\n")
		case <-deadline:
			t.Fatal("Timed out waiting for catalog reload")
		}
	}

	if got.Len() < 2 {
		t.Errorf("Expected reloaded set to include the new file, got %d detectors", got.Len())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watcher did not stop after cancellation")
	}
}
