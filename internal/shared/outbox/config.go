package outbox

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Defaults and clamps match the operational envelope the dispatcher was
// tuned for; callers may override any knob through Config.
const (
	defaultPollInterval = 500 * time.Millisecond
	minPollInterval     = 50 * time.Millisecond

	defaultBatchSize = 50
	maxBatchSize     = 500

	defaultLease = 30 * time.Second
	minLease     = 5 * time.Second
	maxLease     = 5 * time.Minute

	defaultMaxErrorLength = 2000
	minMaxErrorLength     = 200
	maxMaxErrorLength     = 10000

	defaultMaxAttempts = 25
)

// Config tunes one dispatcher instance.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	LeaseDuration  time.Duration
	MaxErrorLength int
	MaxAttempts    int
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollInterval < minPollInterval {
		c.PollInterval = minPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchSize > maxBatchSize {
		c.BatchSize = maxBatchSize
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLease
	}
	if c.LeaseDuration < minLease {
		c.LeaseDuration = minLease
	}
	if c.LeaseDuration > maxLease {
		c.LeaseDuration = maxLease
	}
	if c.MaxErrorLength <= 0 {
		c.MaxErrorLength = defaultMaxErrorLength
	}
	if c.MaxErrorLength < minMaxErrorLength {
		c.MaxErrorLength = minMaxErrorLength
	}
	if c.MaxErrorLength > maxMaxErrorLength {
		c.MaxErrorLength = maxMaxErrorLength
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// NewInstanceID builds the lease-holder tag for one dispatcher process.
// Generated once at process start and threaded through every lease write.
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dispatcher"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}
