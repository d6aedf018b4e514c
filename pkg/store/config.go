package store

import "time"

// Config carries every construction-time setting for a Manager. All
// fields are fixed once NewManager returns; there is no hot-reload.
//
// The yaml tags let a host application that already decodes its own
// configuration from YAML embed this struct directly rather than
// hand-copying fields.
type Config struct {
	// SentinelAddrs lists the "host:port" sentinel endpoints used to
	// discover the current primary.
	SentinelAddrs []string `yaml:"sentinelAddrs"`

	// MasterName is the logical name the sentinels monitor.
	MasterName string `yaml:"masterName"`

	// Password authenticates against the resolved primary/replicas.
	// Connections to the sentinels themselves are made without a
	// password. Empty means no authentication.
	Password string `yaml:"password"`

	// TLS enables TLS for the connection to the resolved primary.
	TLS bool `yaml:"tls"`

	// CommandTimeout bounds a single command's round trip.
	CommandTimeout time.Duration `yaml:"commandTimeout"`

	// PoolMaxTotal is the maximum number of connections held open.
	PoolMaxTotal int `yaml:"poolMaxTotal"`

	// PoolMinIdle is the minimum number of idle connections maintained.
	PoolMinIdle int `yaml:"poolMinIdle"`

	// PoolMaxWait bounds how long a blocking Execute call waits to
	// borrow a connection before failing.
	PoolMaxWait time.Duration `yaml:"poolMaxWait"`

	// RetryAttempts is the total number of attempts (including the
	// first) made before a command failure is surfaced.
	RetryAttempts int `yaml:"retryAttempts"`

	// RetryWait is the fixed wait between retry attempts.
	RetryWait time.Duration `yaml:"retryWait"`

	// BreakerSlowCallDuration marks a call as "slow" for the purpose of
	// the circuit breaker's failure-rate accounting.
	BreakerSlowCallDuration time.Duration `yaml:"breakerSlowCallDuration"`

	// BreakerOpenDuration is how long the breaker stays open before
	// admitting trial calls.
	BreakerOpenDuration time.Duration `yaml:"breakerOpenDuration"`

	// BreakerMinRequests is the minimum number of calls counted since
	// the breaker last closed before its failure ratio is evaluated.
	// The count is cumulative, not a sliding window of the most recent
	// calls.
	BreakerMinRequests uint32 `yaml:"breakerMinRequests"`

	// MarkerTTL is the idempotency-marker lifetime carried with the rest
	// of the configuration. Manager does not apply it itself: each
	// counter strategy writes markers with the TTL it was built with
	// (counter.FactoryConfig.MarkerTTL), where zero disables expiration.
	MarkerTTL time.Duration `yaml:"markerTtl"`

	// HealthCheckRetries is the number of consecutive failed probes
	// HealthCheck requires before it reports the primary as unhealthy.
	HealthCheckRetries int `yaml:"healthCheckRetries"`
}

// DefaultConfig returns a Config with the resilience defaults described
// in the backing-store manager's design: fixed-wait retry, a breaker
// that trips once at least 10 calls have been counted since it last
// closed and at least half of them failed, and a MarkerTTL of 24h.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:          2 * time.Second,
		PoolMaxTotal:            10,
		PoolMinIdle:             1,
		PoolMaxWait:             1 * time.Second,
		RetryAttempts:           3,
		RetryWait:               50 * time.Millisecond,
		BreakerSlowCallDuration: 500 * time.Millisecond,
		BreakerOpenDuration:     30 * time.Second,
		BreakerMinRequests:      10,
		MarkerTTL:               24 * time.Hour,
		HealthCheckRetries:      3,
	}
}

// Validate rejects configuration that would make Manager construction
// meaningless.
func (c Config) Validate() error {
	if len(c.SentinelAddrs) == 0 {
		return errConfig("sentinelAddrs must not be empty")
	}
	if c.MasterName == "" {
		return errConfig("masterName must not be empty")
	}
	if c.RetryAttempts < 1 {
		return errConfig("retryAttempts must be at least 1")
	}
	return nil
}
