package config

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AudioPath    string
	TimelinePath string
	OutputVideo  string
	Title        string
	Width        int
	Height       int
	FPS          int
	DurationMs   int64
	Workers      int
	PreviewAddr  string
	EndCard      bool
	EndCardMs    int64
	ShareURL     string
	VideoEncoder string
	Container    string
	Quality      int
	Style        *Style
}

// ExportParams carries everything the capture sink needs for one job.
type ExportParams struct {
	Width        int
	Height       int
	FPS          int
	DurationMs   int64
	AudioPath    string
	OutputPath   string
	VideoEncoder string
	Container    string
	Quality      int
}

// Style describes the visual treatment of a video and is loaded from a YAML
// file so a look can be reused across tracks.
type Style struct {
	FontPath       string  `yaml:"font"`
	FontSize       float64 `yaml:"font_size"`
	TextColor      string  `yaml:"text_color"`
	HighlightColor string  `yaml:"highlight_color"`
	ShadowColor    string  `yaml:"shadow_color"`
	PanelColor     string  `yaml:"panel_color"`
	PanelAlpha     float64 `yaml:"panel_alpha"`
	MaxTextWidth   float64 `yaml:"max_text_width"`
	Padding        int     `yaml:"padding"`
	LineSpacing    float64 `yaml:"line_spacing"`
	WordHighlight  bool    `yaml:"word_highlight"`
	ZoomMode       string  `yaml:"zoom_mode"`
	ZoomMax        float64 `yaml:"zoom_max"`
	FadeMs         int64   `yaml:"fade_ms"`
}

func DefaultStyle() *Style {
	return &Style{
		FontSize:       48,
		TextColor:      "#ffffff",
		HighlightColor: "#ffd24a",
		ShadowColor:    "#000000",
		PanelColor:     "#000000",
		PanelAlpha:     0.55,
		MaxTextWidth:   0.88,
		Padding:        24,
		LineSpacing:    1.25,
		WordHighlight:  true,
		ZoomMode:       "center",
		ZoomMax:        1.12,
		FadeMs:         1000,
	}
}

// LoadStyle reads a style file over the defaults, so partial files only
// override the keys they mention.
func LoadStyle(path string) (*Style, error) {
	s := DefaultStyle()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: некорректный файл стиля %s: %w", path, err)
	}
	return s, s.validate()
}

func (s *Style) validate() error {
	if s.ZoomMax < 1.0 {
		return fmt.Errorf("config: zoom_max %.2f меньше 1.0", s.ZoomMax)
	}
	if s.MaxTextWidth <= 0 || s.MaxTextWidth > 1 {
		return fmt.Errorf("config: max_text_width %.2f вне диапазона (0, 1]", s.MaxTextWidth)
	}
	if s.FadeMs < 0 {
		return fmt.Errorf("config: fade_ms %d отрицателен", s.FadeMs)
	}
	return nil
}

// ParseHexColor parses #rgb, #rrggbb and #rrggbbaa notations.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var c color.RGBA
	c.A = 0xff

	hexByte := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	pair := func(i int) (uint8, error) {
		hi, ok1 := hexByte(s[i])
		lo, ok2 := hexByte(s[i+1])
		if !ok1 || !ok2 {
			return 0, fmt.Errorf("config: некорректный цвет %q", s)
		}
		return hi<<4 | lo, nil
	}

	var err error
	switch len(s) {
	case 3:
		var v [3]uint8
		for i := 0; i < 3; i++ {
			h, ok := hexByte(s[i])
			if !ok {
				return c, fmt.Errorf("config: некорректный цвет %q", s)
			}
			v[i] = h<<4 | h
		}
		c.R, c.G, c.B = v[0], v[1], v[2]
	case 8:
		if c.A, err = pair(6); err != nil {
			return c, err
		}
		fallthrough
	case 6:
		if c.R, err = pair(0); err != nil {
			return c, err
		}
		if c.G, err = pair(2); err != nil {
			return c, err
		}
		if c.B, err = pair(4); err != nil {
			return c, err
		}
	default:
		return c, fmt.Errorf("config: некорректный цвет %q", s)
	}
	return c, nil
}
