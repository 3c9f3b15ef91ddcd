package shape

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/valstream/errors"
)

// LoadFile reads one shape from a .json, .yaml, .yml or .toml file.
func LoadFile(path string) (*Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shape file %s", path)
	}

	var s Shape
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	case ".toml":
		_, err = toml.Decode(string(data), &s)
	default:
		return nil, errors.NewInvalidRequestError("unsupported shape file extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse shape file %s", path)
	}

	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid shape file %s", path)
	}
	return &s, nil
}

// LoadDir reads every shape file in dir, ordered by file name. Files with
// other extensions are ignored. Shape ids must be unique.
func LoadDir(dir string) ([]*Shape, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shape directory %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isShapeFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	shapes := make([]*Shape, 0, len(names))
	byID := make(map[string]string)
	for _, name := range names {
		s, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := byID[s.ID]; dup {
			return nil, errors.NewInvalidRequestError("shape %s defined in both %s and %s", s.ID, prev, name)
		}
		byID[s.ID] = name
		shapes = append(shapes, s)
	}

	if len(shapes) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("no shapes found in %s", dir),
			"shape files need a .json, .yaml, .yml or .toml extension")
	}
	return shapes, nil
}

func isShapeFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
