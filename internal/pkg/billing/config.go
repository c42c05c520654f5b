package billing

import (
	"strings"
	"time"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/env"
	"github.com/bothive/bothive/internal/pkg/statustrack"
)

const (
	// SecondsPerDay is the length of one charge period.
	SecondsPerDay = 86400
	// MonthSeconds is the fixed 30-day proration divisor.
	MonthSeconds = 30 * SecondsPerDay

	// ChargePeriod is one charge period as a duration.
	ChargePeriod = 24 * time.Hour

	// SweepLockKey is the Redis key guarding the billing sweep.
	SweepLockKey = "billing:sweep"
)

// Config carries the billing tunables.
type Config struct {
	Billable      statustrack.BillableSet
	SweepInterval time.Duration
	// LockTTL must be shorter than SweepInterval so a crashed holder's lock
	// expires before the next due sweep, yet long enough to cover the
	// worst-case sweep duration.
	LockTTL time.Duration
}

// ConfigFromEnv reads billing settings from the environment.
func ConfigFromEnv() Config {
	statuses := []models.InstanceStatus{}
	for _, raw := range strings.Split(env.GetEnv("BILLABLE_STATUSES", "active"), ",") {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			statuses = append(statuses, models.ParseInstanceStatus(raw))
		}
	}
	return Config{
		Billable:      statustrack.NewBillableSet(statuses...),
		SweepInterval: time.Duration(env.GetEnvInt("BILLING_SWEEP_SECONDS", 300)) * time.Second,
		LockTTL:       time.Duration(env.GetEnvInt("BILLING_LOCK_TTL_SECONDS", 240)) * time.Second,
	}
}

// ceilDiv divides rounding up, so partial currency units are never dropped in
// the platform's disfavor.
func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}
