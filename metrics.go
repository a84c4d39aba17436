package authkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram tracked by [Metrics].
type MetricID uint16

const (
	// MetricLoginSuccess counts completed logins, with or without MFA.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected login attempts of any cause.
	MetricLoginFailure
	// MetricMFARequired counts logins answered with the MFA challenge.
	MetricMFARequired
	// MetricMFASuccess counts accepted TOTP or backup-code proofs.
	MetricMFASuccess
	// MetricMFAFailure counts rejected MFA proofs.
	MetricMFAFailure
	// MetricBackupCodeUsed counts logins that consumed a backup code.
	MetricBackupCodeUsed
	// MetricBackupCodesRegenerated counts backup-code regenerations.
	MetricBackupCodesRegenerated
	// MetricRefreshSuccess counts completed token rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricReuseDetected counts refresh-token reuse incidents.
	MetricReuseDetected
	// MetricAccountLocked counts lockouts triggered by failed logins.
	MetricAccountLocked
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts registrations rejected on email.
	MetricRegisterDuplicate
	// MetricEmailVerified counts completed email verifications.
	MetricEmailVerified
	// MetricVerificationFailure counts rejected verification tokens.
	MetricVerificationFailure
	// MetricVerificationResent counts reissued verification tokens.
	MetricVerificationResent
	// MetricResetRequested counts password reset requests.
	MetricResetRequested
	// MetricResetSuccess counts completed password resets.
	MetricResetSuccess
	// MetricResetFailure counts rejected reset tokens.
	MetricResetFailure
	// MetricPasswordRehash counts transparent hash upgrades at login.
	MetricPasswordRehash
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricSessionRevoked counts targeted session revocations.
	MetricSessionRevoked
	// MetricSessionsRevokedAll counts revoke-all operations.
	MetricSessionsRevokedAll
	// MetricRoleAssigned counts role grants.
	MetricRoleAssigned
	// MetricRoleRemoved counts role removals.
	MetricRoleRemoved
	// MetricLoginLatency is the login duration histogram.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps hot counters on distinct cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size, allocation-free counter set. All methods are safe
// for concurrent use, and a nil *Metrics is a valid no-op receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter. Unknown IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only [MetricLoginLatency] carries a
// histogram; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when latency tracking is on, the login
// latency buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
