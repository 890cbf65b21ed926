package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordered classification of flooded area.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeverityMajor
	SeverityCatastrophic
)

// severityTiers is the ascending threshold table. A tier applies when the
// area is strictly greater than its lower bound.
var severityTiers = []struct {
	above    float64
	severity Severity
}{
	{3000, SeverityCatastrophic},
	{1500, SeverityMajor},
	{500, SeverityModerate},
	{0, SeverityMinor},
}

var severityInfo = map[Severity]struct{ label, color string }{
	SeverityNone:         {"None", "#64748b"},
	SeverityMinor:        {"Minor", "#22c55e"},
	SeverityModerate:     {"Moderate", "#eab308"},
	SeverityMajor:        {"Major", "#f97316"},
	SeverityCatastrophic: {"Catastrophic", "#dc2626"},
}

// SeverityOf classifies an area in km². Non-positive and NaN areas are None.
func SeverityOf(areaKm2 float64) Severity {
	for _, tier := range severityTiers {
		if areaKm2 > tier.above {
			return tier.severity
		}
	}
	return SeverityNone
}

func (s Severity) String() string {
	if info, ok := severityInfo[s]; ok {
		return info.label
	}
	return "Unknown"
}

// Color is the display color of the tier.
func (s Severity) Color() string {
	if info, ok := severityInfo[s]; ok {
		return info.color
	}
	return severityInfo[SeverityNone].color
}

func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityInfo[s]; !ok {
		return nil, fmt.Errorf("invalid severity %d", s)
	}
	return []byte(strings.ToLower(s.String())), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for k, info := range severityInfo {
		if strings.EqualFold(info.label, string(b)) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}
