package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"streetroll/pkg/request"
)

// DefaultTimeout bounds a single check when the probe sets none.
const DefaultTimeout = 5 * time.Second

// CheckFunc is a function that performs a health check.
// It returns nil if the check passes, or an error if it fails.
type CheckFunc func(ctx context.Context) error

// Probe represents a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // If true, a failure here should prevent application startup.
	Timeout  time.Duration
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes a list of probes and returns their results.
// Each check gets its own timeout so a hanging dependency cannot stall startup.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		timeout := p.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs a summary and returns the joined errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error, "critical", r.Probe.Critical)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	return errors.Join(criticalErrors...)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the history database answers.
func Database(p Pinger) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check: func(ctx context.Context) error {
			return p.PingContext(ctx)
		},
	}
}

// ImageryToken checks that an imagery access token is configured.
func ImageryToken(token string) Probe {
	return Probe{
		Name:     "Imagery Token",
		Critical: true,
		Check: func(context.Context) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("no access token; set imagery.access_token or MAPILLARY_ACCESS_TOKEN")
			}
			return nil
		},
	}
}

// Endpoint checks that url answers with a 2xx status through the shared request client.
// A throttled answer counts as reachable.
func Endpoint(name string, rc *request.Client, url string) Probe {
	return Probe{
		Name:    name,
		Timeout: 10 * time.Second,
		Check: func(ctx context.Context) error {
			_, err := rc.Get(ctx, url, "")
			if request.IsTooManyRequests(err) {
				return nil
			}
			return err
		},
	}
}
