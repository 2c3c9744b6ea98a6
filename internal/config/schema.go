package config

import (
	"time"

	"github.com/jackzampolin/tlfpack/internal/toc"
)

// Config holds tlfpack configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Folder    string       `mapstructure:"folder" yaml:"folder"`
	Output    OutputCfg    `mapstructure:"output" yaml:"output"`
	TOC       TOCCfg       `mapstructure:"toc" yaml:"toc"`
	Scan      ScanCfg      `mapstructure:"scan" yaml:"scan"`
	Converter ConverterCfg `mapstructure:"converter" yaml:"converter"`
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
}

// OutputCfg controls the packaged document.
type OutputCfg struct {
	Name string `mapstructure:"name" yaml:"name"` // empty means TLFs_Merged_<timestamp>.pdf
	TOC  bool   `mapstructure:"toc" yaml:"toc"`   // prepend table of contents
}

// TOCCfg holds the front matter page geometry, in points.
type TOCCfg struct {
	FontSize    float64 `mapstructure:"font_size" yaml:"font_size"`
	PageWidth   float64 `mapstructure:"page_width" yaml:"page_width"`
	PageHeight  float64 `mapstructure:"page_height" yaml:"page_height"`
	LeftMargin  float64 `mapstructure:"left_margin" yaml:"left_margin"`
	RightMargin float64 `mapstructure:"right_margin" yaml:"right_margin"`
	TopMargin   float64 `mapstructure:"top_margin" yaml:"top_margin"`
	Gap         float64 `mapstructure:"gap" yaml:"gap"`
	Heading     string  `mapstructure:"heading" yaml:"heading"`
}

// ScanCfg controls folder rescans.
type ScanCfg struct {
	RefreshInterval string `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	Watch           bool   `mapstructure:"watch" yaml:"watch"` // rescan on filesystem events too
}

// ConverterCfg selects the RTF/DOCX to PDF backend.
type ConverterCfg struct {
	// Backend is "libreoffice" or "gotenberg"
	Backend     string         `mapstructure:"backend" yaml:"backend"`
	Retries     int            `mapstructure:"retries" yaml:"retries"`
	LibreOffice LibreOfficeCfg `mapstructure:"libreoffice" yaml:"libreoffice"`
	Gotenberg   GotenbergCfg   `mapstructure:"gotenberg" yaml:"gotenberg"`
}

// LibreOfficeCfg configures the local headless office converter.
type LibreOfficeCfg struct {
	Binary  string `mapstructure:"binary" yaml:"binary"`
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// GotenbergCfg configures the containerized converter.
type GotenbergCfg struct {
	// URL of an already running Gotenberg. Empty starts a container.
	URL string `mapstructure:"url" yaml:"url"`
	// ContainerName is the Docker container name (default: tlfpack-gotenberg)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: gotenberg/gotenberg:8)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 3900)
	Port string `mapstructure:"port" yaml:"port"`
}

// ServerCfg configures the HTTP API.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputCfg{
			TOC: true,
		},
		TOC: TOCCfg{
			FontSize:    8,
			PageWidth:   595,
			PageHeight:  842,
			LeftMargin:  50,
			RightMargin: 60,
			TopMargin:   50,
			Gap:         8,
			Heading:     "Table of Contents",
		},
		Scan: ScanCfg{
			RefreshInterval: "3s",
			Watch:           true,
		},
		Converter: ConverterCfg{
			Backend: "libreoffice",
			Retries: 2,
			LibreOffice: LibreOfficeCfg{
				Binary:  "soffice",
				Timeout: "2m",
			},
			Gotenberg: GotenbergCfg{
				ContainerName: "tlfpack-gotenberg",
				Image:         "gotenberg/gotenberg:8",
				Port:          "3900",
			},
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8390",
		},
	}
}

// RefreshInterval returns the parsed rescan interval, 3s if unset or invalid.
func (c *Config) RefreshInterval() time.Duration {
	return parseDuration(c.Scan.RefreshInterval, 3*time.Second)
}

// ConvertTimeout returns the per-file LibreOffice timeout, 2m if unset or invalid.
func (c *Config) ConvertTimeout() time.Duration {
	return parseDuration(c.Converter.LibreOffice.Timeout, 2*time.Minute)
}

// Geometry returns the table of contents geometry.
func (c *Config) Geometry() toc.Geometry {
	g := toc.DefaultGeometry()
	g.FontSize = c.TOC.FontSize
	g.PageWidth = c.TOC.PageWidth
	g.PageHeight = c.TOC.PageHeight
	g.LeftMargin = c.TOC.LeftMargin
	g.RightMargin = c.TOC.RightMargin
	g.TopMargin = c.TOC.TopMargin
	g.Gap = c.TOC.Gap
	g.Heading = c.TOC.Heading
	return g
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
