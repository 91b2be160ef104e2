package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"example.com/udsgate/internal/schema"
)

// SchemaPack points a schema identifier at a YAML database file.
type SchemaPack struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Path string `json:"path" yaml:"path"`
}

// Options configures server creation.
type Options struct {
	StorageDir     string
	SchemaManifest string
	SchemaPacks    []SchemaPack
	RulePackPath   string
	Concurrency    int
}

// loadedSchema is one registered schema plus its provenance.
type loadedSchema struct {
	id     string
	name   string
	path   string
	schema *schema.Schema
}

// LoadSchemaManifest parses a manifest JSON document that enumerates the
// available schema databases. Relative paths are resolved against the
// manifest's directory.
func LoadSchemaManifest(path string) ([]SchemaPack, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("manifest path is empty")
	}
	manifestPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest path: %w", err)
	}
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	var doc struct {
		Schemas []SchemaPack `json:"schemas"`
	}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(doc.Schemas) == 0 {
		return nil, errors.New("manifest contains no schemas")
	}
	base := filepath.Dir(manifestPath)
	out := make([]SchemaPack, len(doc.Schemas))
	for i, pack := range doc.Schemas {
		resolved, err := resolveSchemaPaths(base, pack)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveSchemaPaths(base string, pack SchemaPack) (SchemaPack, error) {
	pack.ID = strings.TrimSpace(pack.ID)
	pack.Name = strings.TrimSpace(pack.Name)
	pack.Path = strings.TrimSpace(pack.Path)
	if pack.ID == "" {
		return SchemaPack{}, errors.New("manifest schema entry missing id")
	}
	if pack.Path == "" {
		return SchemaPack{}, fmt.Errorf("manifest schema %s missing path", pack.ID)
	}
	if !filepath.IsAbs(pack.Path) {
		pack.Path = filepath.Join(base, pack.Path)
	}
	return pack, nil
}

// buildSchemaMap resolves the configured schema packs into loaded
// schemas. An empty configuration is fine: schemas can still be
// uploaded at runtime.
func buildSchemaMap(opts Options) (map[string]*loadedSchema, []string, error) {
	packs := opts.SchemaPacks
	if len(packs) == 0 && strings.TrimSpace(opts.SchemaManifest) != "" {
		var err error
		packs, err = LoadSchemaManifest(opts.SchemaManifest)
		if err != nil {
			return nil, nil, fmt.Errorf("load schema manifest: %w", err)
		}
	}
	entries := make(map[string]*loadedSchema)
	for _, pack := range packs {
		id := strings.TrimSpace(pack.ID)
		path := strings.TrimSpace(pack.Path)
		if id == "" {
			return nil, nil, errors.New("schema pack missing id")
		}
		if path == "" {
			return nil, nil, fmt.Errorf("schema %s missing path", id)
		}
		if !filepath.IsAbs(path) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, nil, fmt.Errorf("schema %s path abs: %w", id, err)
			}
			path = abs
		}
		if _, exists := entries[id]; exists {
			return nil, nil, fmt.Errorf("duplicate schema %s configured", id)
		}
		loaded, err := schema.Load(path)
		if err != nil {
			return nil, nil, fmt.Errorf("schema %s: %w", id, err)
		}
		name := pack.Name
		if name == "" {
			name = loaded.Name
		}
		entries[id] = &loadedSchema{id: id, name: name, path: path, schema: loaded}
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return entries, ids, nil
}
