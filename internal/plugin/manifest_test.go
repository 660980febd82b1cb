package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
)

func TestReadManifestJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr error
	}{
		{"requires", `{"name": "p", "plugin": {"requires": ["a", "b"]}}`, []string{"a", "b"}, nil},
		{"empty requires", `{"plugin": {"requires": []}}`, nil, nil},
		{"no plugin field", `{"name": "p", "version": "1.0.0"}`, nil, nil},
		{"null requires", `{"plugin": {"requires": null}}`, nil, nil},
		{"string requires", `{"plugin": {"requires": "a"}}`, nil, ErrManifestShape},
		{"object requires", `{"plugin": {"requires": {"a": true}}}`, nil, ErrManifestShape},
		{"non-string entry", `{"plugin": {"requires": ["a", 1]}}`, nil, ErrManifestShape},
		{"invalid json", `{"plugin": `, nil, ErrManifestShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ManifestJSON), tt.content)

			md, err := ReadManifest(dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ReadManifest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadManifest() error = %v", err)
			}
			if !equalStrings(md.Requires, tt.want) {
				t.Errorf("Requires = %v, want %v", md.Requires, tt.want)
			}
			if md.Source != filepath.Join(dir, ManifestJSON) {
				t.Errorf("Source = %q", md.Source)
			}
		})
	}
}

func TestReadManifestHCL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name: "requires",
			content: `
name = "p"

plugin {
  requires = ["logger", "storage"]
  version  = "2"
}
`,
			want: []string{"logger", "storage"},
		},
		{"no plugin block", `name = "p"`, nil, false},
		{"empty block", "plugin {\n}\n", nil, false},
		{"wrong type", "plugin {\n  requires = \"a\"\n}\n", nil, true},
		{"syntax error", "plugin {", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ManifestHCL), tt.content)

			md, err := ReadManifest(dir)
			if tt.wantErr {
				if !errors.Is(err, ErrManifestShape) {
					t.Errorf("ReadManifest() error = %v, want ErrManifestShape", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadManifest() error = %v", err)
			}
			if !equalStrings(md.Requires, tt.want) {
				t.Errorf("Requires = %v, want %v", md.Requires, tt.want)
			}
		})
	}
}

func TestReadManifestPrefersJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestJSON), `{"plugin": {"requires": ["from-json"]}}`)
	writeFile(t, filepath.Join(dir, ManifestHCL), "plugin {\n  requires = [\"from-hcl\"]\n}\n")

	md, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if !equalStrings(md.Requires, []string{"from-json"}) {
		t.Errorf("Requires = %v, want [from-json]", md.Requires)
	}
}

func TestReadManifestMissing(t *testing.T) {
	md, err := ReadManifest(t.TempDir())
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if md.HasRequires() || md.Source != "" {
		t.Errorf("ReadManifest() = %+v, want empty", md)
	}
}

func TestAddRequires(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ManifestJSON)
	writeFile(t, file, `{"name": "app", "plugin": {"requires": ["a"]}}`)

	added, err := AddRequires(dir, "a", "b", "", "c", "b")
	if err != nil {
		t.Fatalf("AddRequires() error = %v", err)
	}
	if !equalStrings(added, []string{"b", "c"}) {
		t.Errorf("added = %v, want [b c]", added)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := gjson.GetBytes(data, "name").String(); got != "app" {
		t.Errorf("name = %q, want app (other fields must survive)", got)
	}

	md, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if !equalStrings(md.Requires, []string{"a", "b", "c"}) {
		t.Errorf("Requires = %v, want [a b c]", md.Requires)
	}
}

func TestAddRequiresCreatesManifest(t *testing.T) {
	dir := t.TempDir()

	added, err := AddRequires(dir, "logger")
	if err != nil {
		t.Fatalf("AddRequires() error = %v", err)
	}
	if !equalStrings(added, []string{"logger"}) {
		t.Errorf("added = %v, want [logger]", added)
	}

	md, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if !equalStrings(md.Requires, []string{"logger"}) {
		t.Errorf("Requires = %v, want [logger]", md.Requires)
	}
}

func TestAddRequiresRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestJSON), `{"plugin": {"requires": "a"}}`)

	if _, err := AddRequires(dir, "b"); !errors.Is(err, ErrManifestShape) {
		t.Errorf("AddRequires() error = %v, want ErrManifestShape", err)
	}
}

func TestAddRequiresNothingToAdd(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ManifestJSON)
	original := `{"plugin":{"requires":["a"]}}`
	writeFile(t, file, original)

	added, err := AddRequires(dir, "a")
	if err != nil {
		t.Fatalf("AddRequires() error = %v", err)
	}
	if len(added) != 0 {
		t.Errorf("added = %v, want none", added)
	}
	data, _ := os.ReadFile(file)
	if string(data) != original {
		t.Errorf("manifest rewritten without changes: %s", data)
	}
}

func TestMetadataClone(t *testing.T) {
	md := Metadata{Requires: []string{"a"}, Source: "x"}
	clone := md.Clone()
	clone.Requires[0] = "b"
	if md.Requires[0] != "a" {
		t.Error("Clone() shares the Requires slice")
	}
	if clone.Source != "x" {
		t.Errorf("Clone().Source = %q", clone.Source)
	}
}
