package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Entry is one convertible document listed in the manifest.
type Entry struct {
	File        string `json:"file"`
	DisplayName string `json:"display_name"`
}

// Manifest is the JSON index of available documents, produced by the
// conversion job and consumed by the document listing.
type Manifest struct {
	OutputDir string  `json:"outputDir"`
	Files     []Entry `json:"files"`
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest atomically (temp file plus rename), so a reader
// never observes a half-written index.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Add inserts an entry, replacing any existing entry with the same output
// filename. Each conversion run deduplicates by filename this way.
func (m *Manifest) Add(e Entry) {
	for i, existing := range m.Files {
		if existing.File == e.File {
			m.Files[i] = e
			return
		}
	}
	m.Files = append(m.Files, e)
}

// Sort orders entries by display name using locale-aware collation. An
// unparseable locale falls back to the unmarked collator.
func (m *Manifest) Sort(locale string) {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	c := collate.New(tag)
	sort.SliceStable(m.Files, func(i, j int) bool {
		return c.CompareString(m.Files[i].DisplayName, m.Files[j].DisplayName) < 0
	})
}
