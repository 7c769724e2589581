package receipt

import (
	"fmt"
	"strings"
	"time"
)

// Strategy names an extraction strategy
type Strategy string

const (
	StrategyNative Strategy = "native"
	StrategyOCR    Strategy = "ocr"
	StrategyVision Strategy = "vision"
)

// Native text page policies
const (
	NativePagesAll   = "all"
	NativePagesFirst = "first"
)

// Config drives the extraction pipeline
type Config struct {
	// RasterOrder is the preference order of raster strategies, tried per page
	RasterOrder []Strategy
	// NativeText enables the PDF text layer attempt
	NativeText bool
	// NativePages is "all" (every page joined by a form feed) or "first"
	NativePages string
	// MinNativeChars is the trimmed rune count native text must exceed to be accepted
	MinNativeChars int
	// BackendTimeout bounds a single OCR or vision call, 0 = no limit
	BackendTimeout time.Duration
	// DocumentConcurrency bounds documents processed at once
	DocumentConcurrency int
	// BackendConcurrency bounds backend calls in flight across the batch
	BackendConcurrency int
	// DPI for PDF rasterization
	DPI int
	// MaxPages caps rendered pages per document, 0 = unlimited
	MaxPages int
	// ScratchDir holds rendered pages, defaults to the OS temp dir
	ScratchDir string
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		RasterOrder:         []Strategy{StrategyVision, StrategyOCR},
		NativeText:          true,
		NativePages:         NativePagesAll,
		MinNativeChars:      50,
		BackendTimeout:      120 * time.Second,
		DocumentConcurrency: 4,
		BackendConcurrency:  2,
		DPI:                 200,
	}
}

// Validate checks the configuration for values the pipeline cannot work with
func (c Config) Validate() error {
	if c.NativePages != NativePagesAll && c.NativePages != NativePagesFirst {
		return fmt.Errorf("native pages must be %q or %q, got %q", NativePagesAll, NativePagesFirst, c.NativePages)
	}
	if c.DocumentConcurrency < 1 {
		return fmt.Errorf("document concurrency must be at least 1")
	}
	if c.BackendConcurrency < 1 {
		return fmt.Errorf("backend concurrency must be at least 1")
	}
	if c.DPI < 36 {
		return fmt.Errorf("dpi must be at least 36, got %d", c.DPI)
	}
	if c.MinNativeChars < 0 || c.MaxPages < 0 || c.BackendTimeout < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	for _, s := range c.RasterOrder {
		if s != StrategyOCR && s != StrategyVision {
			return fmt.Errorf("unknown raster strategy %q", s)
		}
	}
	return nil
}

// ParseStrategies parses a comma separated preference order such as "vision,ocr"
func ParseStrategies(s string) ([]Strategy, error) {
	var out []Strategy
	seen := map[Strategy]bool{}
	for _, part := range strings.Split(s, ",") {
		name := Strategy(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if name != StrategyOCR && name != StrategyVision {
			return nil, fmt.Errorf("unknown raster strategy %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one raster strategy is required")
	}
	return out, nil
}
