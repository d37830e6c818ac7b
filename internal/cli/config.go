package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML file accepted by --config. Unset fields keep
// their defaults; flags and the max_count argument override the file.
//
//	max_count: 2
//	gap: 16
//	marker: "Next PC:"
//	flush_last: false
//	cache: validate
type FileConfig struct {
	MaxCount  *int    `yaml:"max_count"`
	Gap       *uint64 `yaml:"gap"`
	Marker    string  `yaml:"marker"`
	FlushLast *bool   `yaml:"flush_last"`
	Cache     string  `yaml:"cache"`
}

// LoadConfig reads a FileConfig from path. Unknown keys are rejected.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}
