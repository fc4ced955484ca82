package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads a manifest from JSON, or YAML when the extension says so.
// A relative Source is resolved against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		err = json.Unmarshal(b, &m)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Clips) == 0 {
		return Manifest{}, errors.New("manifest has no clips")
	}
	if m.Source != "" && !filepath.IsAbs(m.Source) {
		m.Source = filepath.Join(filepath.Dir(path), m.Source)
	}
	return m, nil
}

// Clip finds a clip by ID, falling back to a 1-based index.
func (m Manifest) Clip(sel string) (Clip, error) {
	sel = strings.TrimSpace(sel)
	for _, c := range m.Clips {
		if c.ID != "" && c.ID == sel {
			return c, nil
		}
	}
	n, err := strconv.Atoi(sel)
	if err != nil {
		return Clip{}, fmt.Errorf("clip %q not found", sel)
	}
	if n < 1 || n > len(m.Clips) {
		return Clip{}, fmt.Errorf("clip index %d out of range [1..%d]", n, len(m.Clips))
	}
	return m.Clips[n-1], nil
}
