package photomet

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config bundles the controls of every algorithm plus the detector
// front end, so a whole run is reproducible from one YAML file.
type Config struct {
	Detector      DetectorParams       `yaml:"detector"`
	Shape         ShapeControl         `yaml:"shape"`
	NaiveFlux     NaiveFluxControl     `yaml:"naiveFlux"`
	NaiveCentroid NaiveCentroidControl `yaml:"naiveCentroid"`
	// Overlay is the path the ellipse overlay JPEG is written to; empty
	// disables rendering.
	Overlay string `yaml:"overlay"`
}

// DefaultConfig returns the stock configuration of every component.
func DefaultConfig() Config {
	return Config{
		Detector:      DefaultDetectorParams(),
		Shape:         DefaultShapeControl(),
		NaiveFlux:     DefaultNaiveFluxControl(),
		NaiveCentroid: DefaultNaiveCentroidControl(),
	}
}

// LoadConfig reads a YAML config file, applying defaults for anything the
// file does not set.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// AsYaml serializes the config back to YAML.
func (c Config) AsYaml() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
