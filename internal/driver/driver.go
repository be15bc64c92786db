// Package driver runs a benchmark: it generates the workload, executes it against the configured
// database and reports on the result.
package driver

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/common"
	"github.com/ldbc/driver/internal/common/drivercontext"
	"github.com/ldbc/driver/internal/common/health"
	"github.com/ldbc/driver/internal/common/logging"
	"github.com/ldbc/driver/internal/common/task"
	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/completiontime"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/db"
	"github.com/ldbc/driver/internal/driver/executor"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/metrics"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/peer"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/scheduling"
	"github.com/ldbc/driver/internal/driver/temporal"
	"github.com/ldbc/driver/internal/driver/workload"
)

const (
	metricsPrefix         = "ldbc_driver_"
	errorLogBurst         = 10
	backgroundStopTimeout = 5 * time.Second
)

// Run executes one benchmark run. It returns an error only if the run could not be set up or the
// workload could not be generated; failures of individual operations are counted in the report.
func Run(ctx *drivercontext.Context, config configuration.DriverConfiguration) (*metrics.Report, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	runId := util.NewULID()
	ctx = drivercontext.WithLogField(ctx, "run", runId)
	clk := clock.RealClock{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	database, err := db.New(config.Db, clk)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(database.Name(), database)
	handlers := handler.NewRegistry(clk)
	if err := database.RegisterOperationHandlers(handlers); err != nil {
		return nil, err
	}

	errorReporter := reporting.NewConcurrentErrorReporter(config.ErrorLogsPerSecond, errorLogBurst)
	service := completiontime.NewService(clk)
	metricsService := metrics.NewConcurrentMetricsService(clk, registry, config.TimeUnit, config.ToleratedExecutionDelay)
	if err := metrics.RegisterCompletionTimeGauge(registry, service.GlobalCompletionTime); err != nil {
		return nil, err
	}
	if err := metrics.RegisterErrorCountGauge(registry, errorReporter.Count); err != nil {
		return nil, err
	}

	startupCompleteCheck := health.NewStartupCompleteChecker()
	if config.HttpPort > 0 {
		mux := http.NewServeMux()
		health.SetupHttpMux(mux, health.NewMultiChecker(startupCompleteCheck), registry)
		shutdownHttpServer := common.ServeHttp(config.HttpPort, mux)
		defer shutdownHttpServer()
	}

	wallStart := temporal.FromTime(clk.Now())
	if config.Distributed.Enabled && !config.Distributed.StartTime.IsZero() {
		wallStart = temporal.FromTime(config.Distributed.StartTime)
	}
	windows, err := newWindower(config, wallStart, errorReporter)
	if err != nil {
		return nil, err
	}

	taskManager := task.NewBackgroundTaskManager(metricsPrefix, registry)
	var coordinator *peer.Coordinator
	if config.Distributed.Enabled {
		exchange, err := peer.NewExchange(config.Distributed)
		if err != nil {
			return nil, err
		}
		defer util.CloseResource("peer exchange", exchange)
		coordinator = peer.NewCoordinator(
			config.Distributed.PeerId, config.Distributed.PeerIds, exchange, service, errorReporter)
		ctx = drivercontext.WithLogField(ctx, "peer", coordinator.Id())
		heartbeatCtx := ctx
		taskManager.Register(func() { coordinator.Heartbeat(heartbeatCtx) }, config.Distributed.HeartbeatInterval, "peer_heartbeat")
	}
	if config.StatusInterval > 0 {
		taskManager.Register(func() {
			logStatus(ctx.Log, metricsService.Status(), service.GlobalCompletionTime(), errorReporter.Count())
		}, config.StatusInterval, "status")
	}

	spinner := scheduling.NewSpinner(
		clk,
		scheduling.NewLoggingExecutionDelayPolicy(config.ToleratedExecutionDelay, config.TolerateExcessiveDelay),
		config.SpinnerSleepDuration)
	exec := executor.NewExecutor(config.WorkerCount, service, handlers, spinner, errorReporter, metricsService)

	startupCompleteCheck.MarkComplete()
	ctx.Log.WithFields(logrus.Fields{
		"db":        database.Name(),
		"workers":   config.WorkerCount,
		"wallStart": wallStart,
	}).Info("Starting benchmark run")

	execErr := exec.Execute(ctx, windows, wallStart)
	if coordinator != nil && execErr == nil {
		awaitPeers(ctx, coordinator, service, config.CompletionTimeWaitTimeout)
	}
	if taskManager.StopAll(backgroundStopTimeout) {
		ctx.Log.Warn("Background tasks did not stop in time")
	}
	// Let peers see this process's final completion time even if the last heartbeat predates it.
	if coordinator != nil {
		publishCtx, cancel := context.WithTimeout(context.Background(), config.CompletionTimeWaitTimeout)
		if !coordinator.PublishFinal(publishCtx, config.Distributed.HeartbeatInterval) {
			ctx.Log.Warn("Could not publish final completion time to peers")
		}
		cancel()
	}

	report := metricsService.Report(runId, errorReporter.Count())
	logStatus(ctx.Log, metricsService.Status(), service.GlobalCompletionTime(), errorReporter.Count())
	if execErr != nil && ctx.Err() != nil {
		ctx.Log.Warnf("Benchmark run interrupted: %s", ctx.Err())
	} else if execErr != nil {
		return report, execErr
	}
	ctx.Log.WithFields(logrus.Fields{
		"dispatched": exec.Dispatched(),
		"skipped":    exec.Skipped() + windows.Skipped(),
	}).Info("Benchmark run finished")

	if config.ResultFile != "" {
		if err := report.WriteFile(config.ResultFile, config.ResultFormat); err != nil {
			logging.WithStacktrace(ctx.Log, err).Error("Failed to write result file")
			return report, err
		}
		ctx.Log.Infof("Results written to %s", config.ResultFile)
	} else {
		report.Print(os.Stdout)
	}
	return report, nil
}

// awaitPeers waits for every peer to finish. Giving up is reported, not fatal: the local results are
// complete either way.
func awaitPeers(
	ctx *drivercontext.Context,
	coordinator *peer.Coordinator,
	service *completiontime.Service,
	timeout time.Duration,
) {
	coordinator.Heartbeat(ctx)
	ctx.Log.Infof("Waiting up to %s for peers to finish", timeout)
	err := service.WaitForCompletionTimeAtLeast(ctx, service.LocalCompletionTime(), timeout)
	if errors.Is(err, completiontime.ErrCompletionTimeWaitTimeout) {
		ctx.Log.Warnf("Peers did not finish within %s; global completion time is %s", timeout, service.GlobalCompletionTime())
	} else if err != nil {
		ctx.Log.WithError(err).Warn("Stopped waiting for peers")
	}
}

func logStatus(log *logrus.Entry, status metrics.Status, gct temporal.Time, errorCount int) {
	log.WithFields(logrus.Fields{
		"completed":  status.Count,
		"errors":     errorCount,
		"gct":        gct,
		"throughput": status.Throughput,
	}).Infof("Status after %s", status.Elapsed.Truncate(time.Millisecond))
}

func newGenerator(config configuration.DriverConfiguration) (workload.Generator, error) {
	mix := make(map[operation.Type]int, len(config.Workload.Mix))
	for typ, weight := range config.Workload.Mix {
		mix[operation.Type(typ)] = weight
	}
	generator, err := workload.NewSyntheticGenerator(workload.SyntheticConfig{
		StartTime:       0,
		Interval:        config.Workload.Interval,
		Mix:             mix,
		DependencyRatio: config.Workload.DependencyRatio,
		GctDelta:        config.Workload.GctDeltaDuration,
		KeySpace:        config.Workload.KeySpace,
		Seed:            config.Workload.Seed,
	})
	if err != nil {
		return nil, err
	}
	if config.OperationCount > 0 {
		return workload.Limit(generator, config.OperationCount), nil
	}
	return generator, nil
}

func newWindower(
	config configuration.DriverConfiguration,
	wallStart temporal.Time,
	errorReporter reporting.ErrorReporter,
) (*workload.Windower, error) {
	generator, err := newGenerator(config)
	if err != nil {
		return nil, err
	}
	mapper := temporal.TimeMapper{
		LogicalStart:     0,
		WallStart:        wallStart,
		CompressionRatio: config.TimeCompressionRatio,
	}
	return workload.NewWindower(generator, mapper, config.WindowSize, errorReporter)
}

// CalculateWorkloadStatistics summarises the workload a run with config would execute, without running it.
func CalculateWorkloadStatistics(config configuration.DriverConfiguration) (*workload.Statistics, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.OperationCount == 0 {
		return nil, errors.New("operationCount must be set to calculate statistics of an unbounded workload")
	}
	generator, err := newGenerator(config)
	if err != nil {
		return nil, err
	}
	return workload.CalculateStatistics(generator)
}
