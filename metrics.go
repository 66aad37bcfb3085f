package rowAuth

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful credential verifications.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected passwords and unknown accounts.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the throttle.
	MetricLoginRateLimited
	// MetricAccountCreated counts accounts provisioned by any path.
	MetricAccountCreated
	// MetricAccountDeleted counts account deletions.
	MetricAccountDeleted
	// MetricTokenRejected counts ID/custom tokens that failed to decode.
	MetricTokenRejected
	// MetricRefreshLookup counts refresh-token resolutions.
	MetricRefreshLookup
	// MetricOobIssued counts OOB codes minted.
	MetricOobIssued
	// MetricOobConsumed counts OOB codes successfully confirmed.
	MetricOobConsumed
	// MetricOobInvalid counts OOB codes rejected as missing/expired/mismatched.
	MetricOobInvalid
	// MetricOobRateLimited counts OOB requests refused by the throttle.
	MetricOobRateLimited
	// MetricMailSent counts OOB emails handed to the mailer.
	MetricMailSent
	// MetricMailFailure counts mailer errors.
	MetricMailFailure

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:     "login_success",
	MetricLoginFailure:     "login_failure",
	MetricLoginRateLimited: "login_rate_limited",
	MetricAccountCreated:   "account_created",
	MetricAccountDeleted:   "account_deleted",
	MetricTokenRejected:    "token_rejected",
	MetricRefreshLookup:    "refresh_lookup",
	MetricOobIssued:        "oob_issued",
	MetricOobConsumed:      "oob_consumed",
	MetricOobInvalid:       "oob_invalid",
	MetricOobRateLimited:   "oob_rate_limited",
	MetricMailSent:         "mail_sent",
	MetricMailFailure:      "mail_failure",
}

// String returns the stable snake_case name of the counter.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics holds atomic counters. When disabled, all operations are no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates a Metrics instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc bumps the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot is a point-in-time copy of all counters, keyed by counter name.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, metricIDCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id.String()] = m.counters[id].Load()
	}
	return out
}
