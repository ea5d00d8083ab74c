package videos

import (
	"strings"

	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/settings"
)

const (
	defaultDuration    = 15
	defaultAspectRatio = "16:9"
	defaultQuality     = "medium"
)

var qualities = map[string]bool{"low": true, "medium": true, "high": true}

// Parameters are the generation settings passed through to the provider.
type Parameters struct {
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
	Style       string `json:"style,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

// Normalize fills defaults and checks the result against the platform
// settings.
func (p Parameters) Normalize(cfg settings.Settings) (Parameters, error) {
	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	p.Style = strings.TrimSpace(p.Style)
	p.Quality = strings.ToLower(strings.TrimSpace(p.Quality))

	if p.Duration == 0 {
		p.Duration = min(defaultDuration, cfg.MaxDurationSec)
	}
	if p.AspectRatio == "" {
		p.AspectRatio = defaultAspectRatio
		if !cfg.SupportsAspectRatio(p.AspectRatio) && len(cfg.SupportedAspectRatios) > 0 {
			p.AspectRatio = cfg.SupportedAspectRatios[0]
		}
	}
	if p.Quality == "" {
		p.Quality = defaultQuality
	}

	fields := map[string]string{}
	if p.Duration < 1 || p.Duration > cfg.MaxDurationSec {
		fields["parameters.duration"] = "must be between 1 and max_duration_sec"
	}
	if !cfg.SupportsAspectRatio(p.AspectRatio) {
		fields["parameters.aspect_ratio"] = "must be one of " + strings.Join(cfg.SupportedAspectRatios, ", ")
	}
	if !qualities[p.Quality] {
		fields["parameters.quality"] = "must be low, medium or high"
	}
	if len(p.Style) > 100 {
		fields["parameters.style"] = "must be at most 100 characters"
	}
	if len(fields) > 0 {
		return p, apperr.Validation("invalid video parameters", fields)
	}
	return p, nil
}
