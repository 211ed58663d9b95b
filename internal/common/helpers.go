// Package common provides general utility helper functions shared across
// gridcarbon's packages.
package common

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/yaml.v3"
)

// MakeConfig reads a YAML config file into a new instance of T.
func MakeConfig[T any](filePath string) (*T, error) {
	config := new(T)

	if filePath == "" {
		return config, errors.New("config file path missing")
	}

	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(configFile, config); err != nil {
		return config, err
	}

	return config, nil
}

// TimeTrack logs the elapsed duration of a tracked operation at debug level.
func TimeTrack(start time.Time, name string, logger log.Logger) {
	elapsed := time.Since(start)
	level.Debug(logger).Log("msg", name, "duration", elapsed)
}

// SanitizeFloat replaces +/-Inf and NaN with zero. Upstream weather and fuel
// mix payloads occasionally carry these for sensor dropouts.
func SanitizeFloat(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}

	return v
}

// Round returns the closest multiple of nearest to value, rounding toward
// "left" (floor), "right" (ceil), or nearest otherwise.
func Round(value int64, nearest int64, side string) int64 {
	switch side {
	case "right":
		return int64(math.Ceil(float64(value)/float64(nearest))) * nearest
	case "left":
		return int64(math.Floor(float64(value)/float64(nearest))) * nearest
	default:
		return int64(math.Round(float64(value)/float64(nearest))) * nearest
	}
}

// RedactDSN replaces the userinfo (username/password) of a database DSN
// with a "redacted:redacted" placeholder before it is logged or printed.
// A string that does not parse as a URL is returned unchanged.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}

	if u.User != nil {
		u.User = url.UserPassword("redacted", "redacted")
	}

	return u.String()
}

// FormatDuration renders a duration the way gridcarbon's CLI tables do:
// seconds with one decimal place for sub-minute durations, otherwise Go's
// default format rounded to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	return d.Round(time.Second).String()
}
