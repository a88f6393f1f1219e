package photom

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

// Config drives a reduction run. The key names are shared by the YAML
// and TOML forms, so an existing input_cmd.toml can be used as is.
type Config struct {
	Verbosity int `yaml:"verbosity" toml:"verbosity"`

	ShortColour string `yaml:"short_colour" toml:"short_colour"`
	LongColour  string `yaml:"long_colour" toml:"long_colour"`

	PathLightShort string `yaml:"path_light_short" toml:"path_light_short"`
	PathLightLong  string `yaml:"path_light_long" toml:"path_light_long"`

	DoDark        bool   `yaml:"do_dark" toml:"do_dark"`
	DoFlat        bool   `yaml:"do_flat" toml:"do_flat"`
	DoDarkFlat    bool   `yaml:"do_dark_flat" toml:"do_dark_flat"`
	PathDarkShort string `yaml:"path_dark_short" toml:"path_dark_short"`
	PathDarkLong  string `yaml:"path_dark_long" toml:"path_dark_long"`
	PathFlatShort string `yaml:"path_flat_short" toml:"path_flat_short"`
	PathFlatLong  string `yaml:"path_flat_long" toml:"path_flat_long"`
	PathDarkFlat  string `yaml:"path_dark_flat" toml:"path_dark_flat"`

	FWHM      float64 `yaml:"FWHM" toml:"FWHM"`             // pixels
	Ratio     float64 `yaml:"ratio" toml:"ratio"`           // minor/major axis of the detection kernel
	Threshold float64 `yaml:"threshold" toml:"threshold"`   // detection threshold, in units of background std
	RAperture float64 `yaml:"r_aperture" toml:"r_aperture"` // aperture radius, in units of FWHM

	PathResult string `yaml:"path_result" toml:"path_result"`
	NStarsMin  int    `yaml:"n_stars_min" toml:"n_stars_min"`

	// Tunables that the original tool hardwired
	Combine        string  `yaml:"combine" toml:"combine"` // "median" or "mean"
	SharpLo        float64 `yaml:"sharp_lo" toml:"sharp_lo"`
	SharpHi        float64 `yaml:"sharp_hi" toml:"sharp_hi"`
	BorderPx       int     `yaml:"border_px" toml:"border_px"`
	PeakMax        float64 `yaml:"peak_max" toml:"peak_max"`
	MatchTolerance float64 `yaml:"match_tolerance" toml:"match_tolerance"`
	Subpixels      int     `yaml:"subpixels" toml:"subpixels"`
	Workers        int     `yaml:"workers" toml:"workers"`

	Reddening  float64 `yaml:"reddening" toml:"reddening"`
	Preview    bool    `yaml:"preview" toml:"preview"`
	Tonemapper string  `yaml:"tonemapper" toml:"tonemapper"`
	SessionDB  string  `yaml:"session_db" toml:"session_db"`
}

func NewConfig() Config {
	return Config{
		ShortColour:    "B",
		LongColour:     "V",
		FWHM:           4.0,
		Ratio:          1.0,
		Threshold:      5.0,
		RAperture:      1.5,
		PathResult:     ".",
		NStarsMin:      1,
		Combine:        "median",
		SharpLo:        0.2,
		SharpHi:        1.0,
		BorderPx:       10,
		PeakMax:        48000,
		MatchTolerance: 4,
		Subpixels:      5,
		Tonemapper:     "histlog",
	}
}

func NewConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func NewConfigFromToml(b []byte) (Config, error) {
	c := NewConfig()
	err := toml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads a .yaml/.yml or .toml config file; keys it does not
// mention keep their defaults.
func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", filename, err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		c, err := NewConfigFromYaml(contents)
		if err != nil {
			return c, fmt.Errorf("config yaml %s: %w", filename, err)
		}
		return c, nil
	case ".toml":
		c, err := NewConfigFromToml(contents)
		if err != nil {
			return c, fmt.Errorf("config toml %s: %w", filename, err)
		}
		return c, nil
	}

	return Config{}, fmt.Errorf("config %s: unrecognized extension, want .yaml or .toml", filename)
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config yaml: %v>", err)
	}
	return string(b)
}

// Validate checks the numeric parameters and fills in derived defaults.
func (c *Config) Validate() error {
	if c.ShortColour == "" || c.LongColour == "" {
		return fmt.Errorf("config: both short_colour and long_colour are required")
	}
	if c.FWHM <= 0 {
		return fmt.Errorf("config: FWHM must be > 0, got %g", c.FWHM)
	}
	if c.Ratio <= 0 || c.Ratio > 1 {
		return fmt.Errorf("config: ratio must be in (0,1], got %g", c.Ratio)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("config: threshold must be > 0, got %g", c.Threshold)
	}
	if c.RAperture <= 0 {
		return fmt.Errorf("config: r_aperture must be > 0, got %g", c.RAperture)
	}

	if c.NStarsMin < 1 {
		c.NStarsMin = 1
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Subpixels <= 0 {
		c.Subpixels = 5
	}
	if c.MatchTolerance <= 0 {
		c.MatchTolerance = 4
	}
	if c.PeakMax <= 0 {
		c.PeakMax = 48000
	}
	if c.BorderPx < 0 {
		c.BorderPx = 0
	}
	if c.SharpHi <= c.SharpLo {
		return fmt.Errorf("config: sharp_lo %g must be below sharp_hi %g", c.SharpLo, c.SharpHi)
	}
	if c.PathResult == "" {
		c.PathResult = "."
	}

	known := false
	for _, name := range Tonemappers {
		known = known || name == c.Tonemapper
	}
	if c.Tonemapper == "" {
		c.Tonemapper = "histlog"
	} else if !known {
		return fmt.Errorf("config: tonemapper %q not recognized, want one of %s", c.Tonemapper, ListTonemappers())
	}

	switch c.Combine {
	case "":
		c.Combine = "median"
	case "median", "mean":
	default:
		return fmt.Errorf("config: combine %q not recognized, want median or mean", c.Combine)
	}

	return nil
}

// MedianCombine reports whether masters are built with the per-pixel
// median (the default) rather than the mean.
func (c Config) MedianCombine() bool { return c.Combine != "mean" }
