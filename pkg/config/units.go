package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support extended units (d, w) in YAML.
type Duration time.Duration

// Common durations.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ParseDuration parses a duration string. On top of time.ParseDuration it accepts d and w.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.ContainsAny(s, "dw") {
		return parseExtendedDuration(s)
	}
	return time.ParseDuration(s)
}

var unitMap = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
}

var durationPart = regexp.MustCompile(`([0-9.]+)([a-zµ]+)`)

func parseExtendedDuration(s string) (time.Duration, error) {
	matches := durationPart.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	var total time.Duration
	for _, match := range matches {
		val, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in duration: %s", match[1])
		}
		base, ok := unitMap[match[2]]
		if !ok {
			return 0, fmt.Errorf("unknown unit: %s", match[2])
		}
		total += time.Duration(val * float64(base))
	}
	return total, nil
}

// Distance represents a distance in meters.
type Distance float64

// Meters returns the distance in meters.
func (d Distance) Meters() float64 { return float64(d) }

// Km returns the distance in kilometers.
func (d Distance) Km() float64 { return float64(d) / 1000 }

// UnmarshalYAML implements yaml.Unmarshaler. Bare numbers are meters.
func (d *Distance) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		var f float64
		if errNum := value.Decode(&f); errNum == nil {
			*d = Distance(f)
			return nil
		}
		return err
	}

	dist, err := ParseDistance(s)
	if err != nil {
		return err
	}
	*d = Distance(dist)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Distance) MarshalYAML() (interface{}, error) {
	return strconv.FormatFloat(float64(d), 'f', -1, 64) + "m", nil
}

// ParseDistance parses "30m" or "0.03km" into meters. A bare number is meters.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	numStr := s
	switch {
	case strings.HasSuffix(s, "km"):
		mult = 1000
		numStr = strings.TrimSuffix(s, "km")
	case strings.HasSuffix(s, "m"):
		numStr = strings.TrimSuffix(s, "m")
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid distance number: %w", err)
	}
	return val * mult, nil
}
