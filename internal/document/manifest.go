package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of a document.
type Manifest struct {
	Width  int          `yaml:"width"`
	Height int          `yaml:"height"`
	Layers []LayerEntry `yaml:"layers"`
}

// LayerEntry is one layer in a manifest. File is empty for a layer that has
// never been written.
type LayerEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	File string `yaml:"file,omitempty"`
	Left int    `yaml:"left"`
	Top  int    `yaml:"top"`
}

// LoadManifest reads and validates a manifest. Unknown fields are rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("canvas size %dx%d must be positive", m.Width, m.Height)
	}
	seen := make(map[string]bool, len(m.Layers))
	for i, l := range m.Layers {
		if l.ID == "" {
			return fmt.Errorf("layers[%d]: id is required", i)
		}
		if seen[l.ID] {
			return fmt.Errorf("layers[%d]: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = true
	}
	return nil
}

// save writes the manifest atomically.
func (m *Manifest) save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("save manifest: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

func (m *Manifest) find(id string) (int, bool) {
	for i, l := range m.Layers {
		if l.ID == id {
			return i, true
		}
	}
	return -1, false
}
