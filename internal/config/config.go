// Package config provides configuration loading and management for the
// lipid analysis server. It handles loading configuration from YAML files,
// provides default values and converts the file into validated analysis
// options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/pipeline"
	"github.com/ironsheep/lipid-tools-mcp/internal/segmentation"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "LIPID_MCP_CONFIG"

// Config represents the application configuration loaded from YAML.
//
// The acceptance bounds are starting points only. Droplet size, shape and
// brightness depend on magnification, stain and cell type and must be
// tuned per experiment.
type Config struct {
	// Edge detection parameters
	Edge struct {
		// LowThreshold and HighThreshold are Sobel gradient magnitudes
		LowThreshold  float64 `yaml:"lowThreshold"`
		HighThreshold float64 `yaml:"highThreshold"`

		// SmoothingRadius is the Gaussian half-width; 0 disables smoothing
		SmoothingRadius int `yaml:"smoothingRadius"`

		// Polarity is bright, dark or any
		Polarity string `yaml:"polarity"`
	} `yaml:"edge"`

	// Region growth parameters
	Segmentation struct {
		MinSeedGap    int `yaml:"minSeedGap"`
		Connectivity  int `yaml:"connectivity"`
		MaxIterations int `yaml:"maxIterations"`
	} `yaml:"segmentation"`

	// Droplet acceptance bounds
	Filter struct {
		MinArea        int     `yaml:"minArea"`
		MaxArea        int     `yaml:"maxArea"`
		MinCircularity float64 `yaml:"minCircularity"`
		IntensityFloor float64 `yaml:"intensityFloor"`
		ExcludeBorder  bool    `yaml:"excludeBorder"`
		MaxAspectRatio float64 `yaml:"maxAspectRatio"`
	} `yaml:"filter"`

	// Measurement parameters
	Measurement struct {
		// PixelSize is the side of one pixel in Unit; 0 reports pixels only
		PixelSize float64 `yaml:"pixelSize"`
		Unit      string  `yaml:"unit"`
	} `yaml:"measurement"`

	// Image input parameters
	Input struct {
		// Channel is luminance, red, green, blue or stain
		Channel      string               `yaml:"channel"`
		MaxDimension int                  `yaml:"maxDimension"`
		Stain        imaging.StainOptions `yaml:"stain"`

		// Depth is 8 (samples 0-255) or 16 (0-65535, 16-bit sources)
		Depth int `yaml:"depth"`
	} `yaml:"input"`

	// Batch parameters
	Batch struct {
		// Workers is the number of images analysed in parallel
		Workers int `yaml:"workers"`

		// Extensions lists the file types picked up from a directory
		Extensions []string `yaml:"extensions"`
	} `yaml:"batch"`

	// Report parameters
	Report struct {
		OutputDir      string  `yaml:"outputDir"`
		OverlayOpacity float64 `yaml:"overlayOpacity"`
		WriteOverlays  bool    `yaml:"writeOverlays"`
		WriteBoxPlot   bool    `yaml:"writeBoxPlot"`
	} `yaml:"report"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	edge := segmentation.DefaultEdgeOptions()
	cfg.Edge.LowThreshold = edge.LowThreshold
	cfg.Edge.HighThreshold = edge.HighThreshold
	cfg.Edge.SmoothingRadius = edge.SmoothingRadius
	cfg.Edge.Polarity = string(edge.Polarity)

	grow := segmentation.DefaultGrowOptions()
	cfg.Segmentation.MinSeedGap = grow.MinSeedGap
	cfg.Segmentation.Connectivity = int(grow.Connectivity)

	filter := segmentation.DefaultFilterOptions()
	cfg.Filter.MinArea = filter.MinArea
	cfg.Filter.MaxArea = filter.MaxArea
	cfg.Filter.MinCircularity = filter.MinCircularity
	cfg.Filter.IntensityFloor = filter.IntensityFloor
	cfg.Filter.MaxAspectRatio = filter.MaxAspectRatio

	cfg.Measurement.Unit = "px"

	cfg.Input.Channel = string(imaging.ChannelLuminance)
	cfg.Input.Stain = imaging.DefaultStainOptions()

	cfg.Input.Depth = 8

	cfg.Batch.Workers = runtime.NumCPU()
	cfg.Batch.Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp"}

	cfg.Report.OutputDir = "lipid_report"
	cfg.Report.OverlayOpacity = 0.5
	cfg.Report.WriteOverlays = true
	cfg.Report.WriteBoxPlot = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
// Keys missing from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by LIPID_MCP_CONFIG, or the defaults
// when the variable is unset.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// AnalyzerOptions converts the file sections into pipeline options.
// The result is not validated; use Validate or pipeline.NewAnalyzer.
func (c *Config) AnalyzerOptions() pipeline.Options {
	return pipeline.Options{
		Edge: segmentation.EdgeOptions{
			LowThreshold:    c.Edge.LowThreshold,
			HighThreshold:   c.Edge.HighThreshold,
			SmoothingRadius: c.Edge.SmoothingRadius,
			Polarity:        segmentation.Polarity(strings.ToLower(c.Edge.Polarity)),
		},
		Grow: segmentation.GrowOptions{
			MinSeedGap:    c.Segmentation.MinSeedGap,
			Connectivity:  segmentation.Connectivity(c.Segmentation.Connectivity),
			MaxIterations: c.Segmentation.MaxIterations,
		},
		Filter: segmentation.FilterOptions{
			MinArea:        c.Filter.MinArea,
			MaxArea:        c.Filter.MaxArea,
			MinCircularity: c.Filter.MinCircularity,
			IntensityFloor: c.Filter.IntensityFloor,
			ExcludeBorder:  c.Filter.ExcludeBorder,
			MaxAspectRatio: c.Filter.MaxAspectRatio,
		},
		Measure: segmentation.MeasureOptions{
			PixelSize: c.Measurement.PixelSize,
		},
	}
}

// ConvertOptions returns how decoded files become intensity images.
func (c *Config) ConvertOptions() imaging.ConvertOptions {
	return imaging.ConvertOptions{
		Channel:      imaging.Channel(strings.ToLower(c.Input.Channel)),
		MaxDimension: c.Input.MaxDimension,
		Stain:        c.Input.Stain,
		Depth:        c.Input.Depth,
	}
}

// Validate checks every section. Analysis option errors are
// *segmentation.ConfigurationError values.
func (c *Config) Validate() error {
	if _, err := pipeline.NewAnalyzer(c.AnalyzerOptions()); err != nil {
		return err
	}

	switch imaging.Channel(strings.ToLower(c.Input.Channel)) {
	case "", imaging.ChannelLuminance, imaging.ChannelRed, imaging.ChannelGreen, imaging.ChannelBlue:
	case imaging.ChannelStain:
		if !c.Input.Stain.IsZero() {
			if err := c.Input.Stain.Validate(); err != nil {
				return &segmentation.ConfigurationError{Component: "input", Field: "stain", Reason: err.Error()}
			}
		}
	default:
		return &segmentation.ConfigurationError{Component: "input", Field: "channel", Reason: fmt.Sprintf("unknown channel %q", c.Input.Channel)}
	}
	if c.Input.MaxDimension < 0 {
		return &segmentation.ConfigurationError{Component: "input", Field: "maxDimension", Reason: "must be >= 0"}
	}
	if err := c.ConvertOptions().Validate(); err != nil {
		return &segmentation.ConfigurationError{Component: "input", Field: "depth", Reason: err.Error()}
	}
	if c.Batch.Workers < 0 {
		return &segmentation.ConfigurationError{Component: "batch", Field: "workers", Reason: "must be >= 0"}
	}
	if c.Report.OverlayOpacity < 0 || c.Report.OverlayOpacity > 1 {
		return &segmentation.ConfigurationError{Component: "report", Field: "overlayOpacity", Reason: "must be within [0, 1]"}
	}
	return nil
}
