package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Store loads and saves whole configuration snapshots
type Store interface {
	Load() (LaunchConfig, error)
	Save(config LaunchConfig) error
}

type codec struct {
	name      string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

var (
	yamlCodec = codec{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	tomlCodec = codec{name: "toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal}
)

func codecFor(path string) codec {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlCodec
	}
	return yamlCodec
}

// FileStore persists the configuration as YAML, or as TOML when the path ends in .toml
type FileStore struct {
	path   string
	codec  codec
	logger logging.Logger
}

func NewFileStore(path string, logger logging.Logger) *FileStore {
	return &FileStore{
		path:   path,
		codec:  codecFor(path),
		logger: logger,
	}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file and repairs it: keys missing from the file take their default
// and the repaired file is written back. A missing file is created with defaults.
func (s *FileStore) Load() (LaunchConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Infof("Configuration file not found, creating defaults, path: %s", s.path)
		config := Default()
		if err := s.Save(config); err != nil {
			return LaunchConfig{}, err
		}
		return config, nil
	}
	if err != nil {
		return LaunchConfig{}, errors.NewIOError("failed to read configuration file", err).WithContext("path", s.path)
	}

	config, missing, err := decodeWithDefaults(s.codec, data)
	if err != nil {
		return LaunchConfig{}, errors.NewValidationError("failed to parse configuration", err).
			WithContext("path", s.path).WithContext("format", s.codec.name)
	}

	if err := ValidateConfig(&config); err != nil {
		return LaunchConfig{}, err
	}

	if len(missing) > 0 {
		s.logger.Warnf("Configuration repaired, path: %s, missing keys: %s", s.path, strings.Join(missing, ", "))
		if err := s.Save(config); err != nil {
			// The in-memory config is still usable
			s.logger.Errorf("Failed to persist repaired configuration, path: %s, error: %v", s.path, err)
		}
	}

	s.logger.Debugf("Configuration loaded, path: %s, format: %s", s.path, s.codec.name)
	return config, nil
}

// Save writes the whole file through a temp file and rename; last writer wins
func (s *FileStore) Save(config LaunchConfig) error {
	data, err := s.codec.marshal(config)
	if err != nil {
		return errors.NewInternalError("failed to encode configuration", err).WithContext("format", s.codec.name)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create configuration directory", err).WithContext("directory", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("failed to create temporary configuration file", err).WithContext("directory", dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("failed to write configuration", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to close configuration", err).WithContext("path", tmpPath)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to replace configuration file", err).WithContext("path", s.path)
	}

	s.logger.Infof("Configuration saved, path: %s", s.path)
	return nil
}

// decodeWithDefaults decodes data over Default() and lists the dotted keys the data lacks
func decodeWithDefaults(c codec, data []byte) (LaunchConfig, []string, error) {
	config := Default()
	if err := c.unmarshal(data, &config); err != nil {
		return LaunchConfig{}, nil, err
	}

	present := map[string]interface{}{}
	if err := c.unmarshal(data, &present); err != nil {
		return LaunchConfig{}, nil, err
	}

	expected, err := defaultKeyTree(c)
	if err != nil {
		return LaunchConfig{}, nil, err
	}

	var missing []string
	collectMissing("", expected, present, &missing)
	sort.Strings(missing)
	return config, missing, nil
}

func defaultKeyTree(c codec) (map[string]interface{}, error) {
	data, err := c.marshal(Default())
	if err != nil {
		return nil, err
	}
	tree := map[string]interface{}{}
	if err := c.unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func collectMissing(prefix string, expected, present map[string]interface{}, missing *[]string) {
	for key, value := range expected {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		got, ok := present[key]
		if !ok {
			*missing = append(*missing, name)
			continue
		}
		expectedSection, isSection := value.(map[string]interface{})
		if !isSection {
			continue
		}
		presentSection, _ := got.(map[string]interface{})
		collectMissing(name, expectedSection, presentSection, missing)
	}
}
