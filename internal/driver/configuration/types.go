package configuration

import (
	"time"

	commonconfig "github.com/ldbc/driver/internal/common/config"
	"github.com/ldbc/driver/internal/driver/temporal"
)

type DriverConfiguration struct {
	// Number of operations to execute; 0 runs the whole workload.
	OperationCount int64 `validate:"gte=0"`
	// Number of workers executing operations; 0 picks a default based on the number of CPUs.
	WorkerCount int `validate:"gte=0"`
	// Multiplier applied to logical workload time when mapping it onto the wall clock.
	TimeCompressionRatio float64 `validate:"gte=0"`
	// How late an operation may start before the delay policy is consulted.
	ToleratedExecutionDelay time.Duration `validate:"gte=0"`
	// If false, operations starting later than ToleratedExecutionDelay are abandoned.
	TolerateExcessiveDelay bool
	SpinnerSleepDuration   time.Duration `validate:"gte=0"`
	WindowSize             time.Duration `validate:"gte=0"`
	// Upper bound on waiting for peers to catch up at the end of a distributed run.
	CompletionTimeWaitTimeout time.Duration `validate:"gte=0"`
	TimeUnit                  temporal.TimeUnit
	StatusInterval            time.Duration `validate:"gte=0"`
	ResultFile                string
	ResultFormat              string `validate:"omitempty,oneof=yaml json"`
	ErrorLogsPerSecond        float64
	// Port serving /metrics and /health; 0 disables the http server.
	HttpPort    uint16
	Workload    WorkloadConfig
	Db          DbConfig
	Distributed DistributedConfig
}

type WorkloadConfig struct {
	// Logical time between consecutive operations.
	Interval time.Duration `validate:"gte=0"`
	// Relative weight of each operation type.
	Mix             map[string]int
	DependencyRatio float64 `validate:"gte=0,lte=1"`
	// Logical distance between a dependent operation and the time it depends on.
	GctDeltaDuration time.Duration `validate:"gte=0"`
	KeySpace         int           `validate:"gte=0"`
	Seed             int64
}

type DbConfig struct {
	Name  string `validate:"required,oneof=dummy redis"`
	Dummy DummyDbConfig
	Redis RedisDbConfig `validate:"-"`
}

type DummyDbConfig struct {
	Latency     time.Duration `validate:"gte=0"`
	FailureRate float64       `validate:"gte=0,lte=1"`
	Seed        int64
}

type RedisDbConfig struct {
	Redis     commonconfig.RedisConfig
	KeyPrefix string
}

type DistributedConfig struct {
	Enabled bool
	// Id of this driver process; generated if empty.
	PeerId string
	// Ids of every other driver process taking part in the run.
	PeerIds []string
	// Wall-clock time every peer maps the start of the workload onto.
	StartTime time.Time
	// Scopes the completion times kept by the transport to one run. Derived from StartTime if empty.
	RunId             string
	Transport         string        `validate:"omitempty,oneof=redis sqlite"`
	HeartbeatInterval time.Duration `validate:"gte=0"`
	Redis             commonconfig.RedisConfig `validate:"-"`
	Sqlite            SqliteConfig             `validate:"-"`
}

type SqliteConfig struct {
	Path        string `validate:"required"`
	BusyTimeout time.Duration
}
