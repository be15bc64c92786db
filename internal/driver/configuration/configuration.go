// Package configuration holds the settings of a benchmark run.
package configuration

import (
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/temporal"
)

const (
	DefaultToleratedExecutionDelay   = 100 * time.Millisecond
	DefaultSpinnerSleepDuration      = 100 * time.Microsecond
	DefaultWindowSize                = time.Second
	DefaultGctDeltaDuration          = 60 * time.Minute
	DefaultCompletionTimeWaitTimeout = 30 * time.Second
	DefaultHeartbeatInterval         = 100 * time.Millisecond
	DefaultTimeUnit                  = temporal.Milliseconds
	DefaultResultFormat              = "yaml"
)

// DefaultWorkerCount leaves a few processors to the services supporting the workers.
func DefaultWorkerCount() int {
	if n := runtime.NumCPU() - 6; n > 1 {
		return n
	}
	return 1
}

// ApplyDefaults replaces unset values with their defaults.
func (c *DriverConfiguration) ApplyDefaults() {
	if c.WorkerCount == 0 {
		c.WorkerCount = DefaultWorkerCount()
	}
	if c.TimeCompressionRatio == 0 {
		c.TimeCompressionRatio = 1
	}
	if c.ToleratedExecutionDelay == 0 {
		c.ToleratedExecutionDelay = DefaultToleratedExecutionDelay
	}
	if c.SpinnerSleepDuration == 0 {
		c.SpinnerSleepDuration = DefaultSpinnerSleepDuration
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.CompletionTimeWaitTimeout == 0 {
		c.CompletionTimeWaitTimeout = DefaultCompletionTimeWaitTimeout
	}
	if c.TimeUnit == "" {
		c.TimeUnit = DefaultTimeUnit
	}
	if c.ResultFormat == "" {
		c.ResultFormat = DefaultResultFormat
	}
	if c.Workload.GctDeltaDuration == 0 {
		c.Workload.GctDeltaDuration = DefaultGctDeltaDuration
	}
	if c.Distributed.Enabled {
		if c.Distributed.PeerId == "" {
			c.Distributed.PeerId = util.NewPeerId()
		}
		if c.Distributed.HeartbeatInterval == 0 {
			c.Distributed.HeartbeatInterval = DefaultHeartbeatInterval
		}
		if c.Distributed.RunId == "" {
			c.Distributed.RunId = defaultRunId(c.Distributed)
		}
	}
}

// defaultRunId is shared by every peer given the same start time. A peer without a start time has no
// peers and only needs a key no later run reuses.
func defaultRunId(d DistributedConfig) string {
	if !d.StartTime.IsZero() {
		return strconv.FormatInt(d.StartTime.UnixNano(), 10)
	}
	return d.PeerId + "-" + util.NewULID()
}

// Validate checks struct tags, then the settings whose validity depends on other settings.
func (c *DriverConfiguration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := temporal.ParseTimeUnit(string(c.TimeUnit)); err != nil {
		return err
	}
	if c.Db.Name == "redis" {
		if err := validate.Struct(c.Db.Redis); err != nil {
			return err
		}
	}
	if c.Distributed.Enabled {
		if err := c.validateDistributed(validate); err != nil {
			return err
		}
	}
	return c.validateDependencyWindows()
}

// validateDependencyWindows rejects windows wider than the distance between an operation and its
// dependency, as such a dependency could fall inside the window of the operation waiting on it.
func (c *DriverConfiguration) validateDependencyWindows() error {
	if c.Workload.DependencyRatio == 0 || c.WindowSize == 0 {
		return nil
	}
	ratio := c.TimeCompressionRatio
	if ratio == 0 {
		ratio = 1
	}
	delta := time.Duration(float64(c.Workload.GctDeltaDuration) * ratio)
	if c.WindowSize > delta {
		return errors.Errorf(
			"windowSize %s must not exceed workload.gctDeltaDuration scaled by timeCompressionRatio (%s) when workload.dependencyRatio is set",
			c.WindowSize, delta)
	}
	return nil
}

func (c *DriverConfiguration) validateDistributed(validate *validator.Validate) error {
	d := c.Distributed
	if d.PeerId == "" {
		return errors.New("distributed.peerId must be set in distributed mode")
	}
	if slices.Contains(d.PeerIds, d.PeerId) {
		return errors.Errorf("distributed.peerIds must not contain this driver's own id %q", d.PeerId)
	}
	if d.StartTime.IsZero() && len(d.PeerIds) > 0 {
		return errors.New("distributed.startTime must be set when there are peers")
	}
	if d.RunId == "" {
		return errors.New("distributed.runId must be set in distributed mode")
	}
	switch d.Transport {
	case "redis":
		return validate.Struct(d.Redis)
	case "sqlite":
		return validate.Struct(d.Sqlite)
	}
	return errors.New("distributed.transport must be one of redis, sqlite in distributed mode")
}
