package driver

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/ldbc/driver/internal/common/drivercontext"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/metrics"
	"github.com/ldbc/driver/internal/driver/temporal"
	"github.com/ldbc/driver/internal/driver/workload"
)

func testConfig() configuration.DriverConfiguration {
	return configuration.DriverConfiguration{
		OperationCount:          200,
		WorkerCount:             4,
		TimeCompressionRatio:    1,
		ToleratedExecutionDelay: time.Second,
		TolerateExcessiveDelay:  true,
		SpinnerSleepDuration:    100 * time.Microsecond,
		WindowSize:              10 * time.Millisecond,
		TimeUnit:                temporal.Microseconds,
		Workload: configuration.WorkloadConfig{
			Interval:         time.Millisecond,
			Mix:              map[string]int{"read": 3, "write": 1},
			DependencyRatio:  0.5,
			GctDeltaDuration: 10 * time.Millisecond,
			KeySpace:         10,
			Seed:             7,
		},
		Db: configuration.DbConfig{Name: "dummy"},
	}
}

func TestRun(t *testing.T) {
	config := testConfig()
	config.ResultFile = filepath.Join(t.TempDir(), "results.yaml")

	report, err := Run(drivercontext.Background(), config)
	require.NoError(t, err)

	assert.Equal(t, int64(200), report.TotalCount)
	assert.Zero(t, report.ErrorCount)
	assert.Equal(t, temporal.Microseconds, report.TimeUnit)
	var total int64
	for _, o := range report.Operations {
		total += o.Count
	}
	assert.Equal(t, int64(200), total)

	data, err := os.ReadFile(config.ResultFile)
	require.NoError(t, err)
	var written metrics.Report
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, report.RunId, written.RunId)
	assert.Equal(t, report.TotalCount, written.TotalCount)
}

func TestRun_DbFailuresAreReportedNotReturned(t *testing.T) {
	config := testConfig()
	config.OperationCount = 50
	config.Db.Dummy.FailureRate = 1

	report, err := Run(drivercontext.Background(), config)
	require.NoError(t, err)
	assert.Zero(t, report.TotalCount)
	assert.Equal(t, 50, report.ErrorCount)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	tests := map[string]func(c *configuration.DriverConfiguration){
		"unknown db":           func(c *configuration.DriverConfiguration) { c.Db.Name = "postgres" },
		"bad dependency ratio": func(c *configuration.DriverConfiguration) { c.Workload.DependencyRatio = 2 },
		"bad result format":    func(c *configuration.DriverConfiguration) { c.ResultFormat = "xml" },
		"window wider than dependency distance": func(c *configuration.DriverConfiguration) {
			c.WindowSize = 20 * time.Millisecond
		},
		"distributed without transport": func(c *configuration.DriverConfiguration) {
			c.Distributed.Enabled = true
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := testConfig()
			mutate(&config)
			report, err := Run(drivercontext.Background(), config)
			assert.Error(t, err)
			assert.Nil(t, report)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	config := testConfig()
	config.OperationCount = 0
	config.Workload.Interval = time.Second

	ctx, cancel := drivercontext.WithTimeout(drivercontext.Background(), 100*time.Millisecond)
	defer cancel()
	report, err := Run(ctx, config)
	require.NoError(t, err)
	assert.LessOrEqual(t, report.TotalCount, int64(1))
}

func TestRun_DistributedOverSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gct.db")
	startTime := time.Now().Add(200 * time.Millisecond)
	peers := []string{"peer-a", "peer-b"}

	reports := make([]*metrics.Report, len(peers))
	errs := make([]error, len(peers))
	var wg sync.WaitGroup
	for i, id := range peers {
		i, id := i, id
		config := testConfig()
		config.OperationCount = 100
		config.Distributed = configuration.DistributedConfig{
			Enabled:           true,
			PeerId:            id,
			PeerIds:           []string{peers[1-i]},
			StartTime:         startTime,
			Transport:         "sqlite",
			HeartbeatInterval: 10 * time.Millisecond,
			Sqlite:            configuration.SqliteConfig{Path: path},
		}
		config.CompletionTimeWaitTimeout = 10 * time.Second
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = Run(drivercontext.Background(), config)
		}()
	}
	wg.Wait()

	for i := range peers {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(100), reports[i].TotalCount)
		assert.Zero(t, reports[i].ErrorCount)
	}
}

func TestCalculateWorkloadStatistics(t *testing.T) {
	config := testConfig()
	stats, err := CalculateWorkloadStatistics(config)
	require.NoError(t, err)

	assert.Equal(t, int64(200), stats.OperationCount)
	assert.Equal(t, int64(200), stats.CountByType[workload.ReadOperation]+stats.CountByType[workload.WriteOperation])
	assert.Greater(t, stats.DependentCount, int64(0))
	assert.Equal(t, 199*time.Millisecond, stats.Duration())
}

func TestCalculateWorkloadStatistics_Unbounded(t *testing.T) {
	config := testConfig()
	config.OperationCount = 0
	_, err := CalculateWorkloadStatistics(config)
	assert.Error(t, err)
}

func TestValidateWorkload(t *testing.T) {
	result, err := ValidateWorkload(testConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.OperationCount)
	assert.Zero(t, result.ViolationCount)
}

func TestValidateWorkload_Unbounded(t *testing.T) {
	config := testConfig()
	config.OperationCount = 0
	_, err := ValidateWorkload(config)
	assert.Error(t, err)
}

func TestValidateDb(t *testing.T) {
	result, err := ValidateDb(drivercontext.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Executed)
	assert.Zero(t, result.Failed)
}

func TestValidateDb_Failures(t *testing.T) {
	config := testConfig()
	config.Db.Dummy.FailureRate = 1
	result, err := ValidateDb(drivercontext.Background(), config)
	assert.Error(t, err)
	assert.Equal(t, 3, result.Failed)
}
