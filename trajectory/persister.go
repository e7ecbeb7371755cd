package trajectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persister saves and loads a whole cache.
type Persister interface {
	Save(ctx context.Context, c *Cache) error
	Load(ctx context.Context) (*Cache, error)
}

// JSONFile persists a cache as one JSON document.
type JSONFile struct {
	path string
}

// NewJSONFile creates a JSONFile at path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (p *JSONFile) Save(ctx context.Context, c *Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return writeFile(p.path, data)
}

func (p *JSONFile) Load(ctx context.Context) (*Cache, error) {
	data, err := readFile(p.path)
	if err != nil {
		return nil, err
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("json unmarshal %s: %w", p.path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", p.path, err)
	}
	return &c, nil
}

// YAMLFile persists a cache as one YAML document.
type YAMLFile struct {
	path string
}

// NewYAMLFile creates a YAMLFile at path.
func NewYAMLFile(path string) *YAMLFile {
	return &YAMLFile{path: path}
}

func (p *YAMLFile) Save(ctx context.Context, c *Cache) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return writeFile(p.path, data)
}

func (p *YAMLFile) Load(ctx context.Context) (*Cache, error) {
	data, err := readFile(p.path)
	if err != nil {
		return nil, err
	}
	var c Cache
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("yaml unmarshal %s: %w", p.path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", p.path, err)
	}
	return &c, nil
}

// ForPath picks a persister from the file extension: .json, .yaml/.yml or
// .db/.sqlite. SQLite persisters must be closed by the caller.
func ForPath(path string) (Persister, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONFile(path), nil
	case ".yaml", ".yml":
		return NewYAMLFile(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported trajectory file %q", path)
	}
}

// LoadFile loads and validates the cache stored at path.
func LoadFile(ctx context.Context, path string) (*Cache, error) {
	p, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	if s, ok := p.(*SQLite); ok {
		defer s.Close()
	}
	return p.Load(ctx)
}

// SaveFile stores cache at path in the format picked by ForPath.
func SaveFile(ctx context.Context, path string, c *Cache) error {
	p, err := ForPath(path)
	if err != nil {
		return err
	}
	if s, ok := p.(*SQLite); ok {
		defer s.Close()
	}
	return p.Save(ctx, c)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("trajectory %q: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
