package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Manifest file names, checked in this order.
const (
	ManifestJSON = "package.json"
	ManifestHCL  = "plugin.hcl"
)

// requiresPath is the manifest field that lists dependencies.
const requiresPath = "plugin.requires"

// ManifestReader reads the dependency metadata of a plugin directory.
type ManifestReader func(dir string) (Metadata, error)

// ReadManifest reads the manifest in dir. A missing manifest, or one
// without plugin.requires, means no dependencies and is not an error.
func ReadManifest(dir string) (Metadata, error) {
	jsonPath := filepath.Join(dir, ManifestJSON)
	if data, err := os.ReadFile(jsonPath); err == nil {
		return parseJSONManifest(jsonPath, data)
	} else if !os.IsNotExist(err) {
		return Metadata{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	hclPath := filepath.Join(dir, ManifestHCL)
	if data, err := os.ReadFile(hclPath); err == nil {
		return parseHCLManifest(hclPath, data)
	} else if !os.IsNotExist(err) {
		return Metadata{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	return Metadata{}, nil
}

// parseJSONManifest extracts plugin.requires from package.json content.
func parseJSONManifest(file string, data []byte) (Metadata, error) {
	if !gjson.ValidBytes(data) {
		return Metadata{}, &ManifestShapeError{File: file, Reason: "not valid JSON"}
	}

	md := Metadata{Source: file}
	requires := gjson.GetBytes(data, requiresPath)
	if !requires.Exists() || requires.Type == gjson.Null {
		return md, nil
	}
	if !requires.IsArray() {
		return Metadata{}, &ManifestShapeError{File: file, Reason: "{plugin: {requires: []}} must be an array"}
	}

	for i, item := range requires.Array() {
		if item.Type != gjson.String {
			return Metadata{}, &ManifestShapeError{
				File:   file,
				Reason: fmt.Sprintf("plugin.requires[%d] must be a string, got %s", i, item.Type),
			}
		}
		md.Requires = append(md.Requires, item.Str)
	}
	return md, nil
}

// hclManifest is the decoded shape of plugin.hcl.
type hclManifest struct {
	Plugin *hclPluginBlock `hcl:"plugin,block"`
	Remain hcl.Body        `hcl:",remain"`
}

type hclPluginBlock struct {
	Requires []string `hcl:"requires,optional"`
	Remain   hcl.Body `hcl:",remain"`
}

// parseHCLManifest extracts plugin.requires from plugin.hcl content.
func parseHCLManifest(file string, data []byte) (Metadata, error) {
	var m hclManifest
	if err := hclsimple.Decode(file, data, nil, &m); err != nil {
		return Metadata{}, &ManifestShapeError{File: file, Reason: err.Error()}
	}

	md := Metadata{Source: file}
	if m.Plugin != nil {
		md.Requires = m.Plugin.Requires
	}
	return md, nil
}

// AddRequires appends dependency names to plugin.requires in the
// package.json of dir, creating the file if needed. Names already listed
// are skipped. Returns the names actually added.
func AddRequires(dir string, names ...string) ([]string, error) {
	file := filepath.Join(dir, ManifestJSON)

	data, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		data = []byte(`{}`)
	}

	// Validate the existing shape before touching it
	if _, err := parseJSONManifest(file, data); err != nil {
		return nil, err
	}

	var added []string
	for _, name := range names {
		if name == "" || containsRequire(data, name) {
			continue
		}
		data, err = sjson.SetBytes(data, requiresPath+".-1", name)
		if err != nil {
			return nil, fmt.Errorf("failed to update manifest: %w", err)
		}
		added = append(added, name)
	}

	if len(added) == 0 {
		return nil, nil
	}

	if err := os.WriteFile(file, pretty.Pretty(data), 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return added, nil
}

// containsRequire returns true if name is already in plugin.requires.
func containsRequire(data []byte, name string) bool {
	for _, item := range gjson.GetBytes(data, requiresPath).Array() {
		if item.Str == name {
			return true
		}
	}
	return false
}
