package db

import (
	"context"
	"math/rand"

	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
	"github.com/ldbc/driver/internal/driver/workload"
)

// DummyDb executes nothing. Every operation takes the configured latency and fails with the configured
// probability, which makes it useful for exercising the driver itself.
type DummyDb struct {
	config configuration.DummyDbConfig
	clock  clock.Clock
	rand   *rand.Rand
}

func NewDummyDb(config configuration.DummyDbConfig, clk clock.Clock) *DummyDb {
	return &DummyDb{
		config: config,
		clock:  clk,
		rand:   util.NewThreadsafeRand(config.Seed),
	}
}

func (d *DummyDb) Name() string {
	return DummyDbName
}

var dummyOperationTypes = []operation.Type{workload.ReadOperation, workload.WriteOperation, workload.DeleteOperation}

func (d *DummyDb) RegisterOperationHandlers(registry *handler.Registry) error {
	for _, typ := range dummyOperationTypes {
		if err := registry.Register(typ, d.execute); err != nil {
			return err
		}
	}
	return nil
}

func (d *DummyDb) execute(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	if d.config.Latency > 0 {
		d.clock.Sleep(d.config.Latency)
	}
	if d.config.FailureRate > 0 && d.rand.Float64() < d.config.FailureRate {
		return nil, &operation.DbError{Type: op.Type(), Message: "simulated failure"}
	}
	return &operation.Result{}, nil
}

// ValidationCases runs each operation type once; nothing is stored, so only errors are checked.
func (d *DummyDb) ValidationCases(key string) []ValidationCase {
	cases := make([]ValidationCase, 0, len(dummyOperationTypes))
	for i, typ := range dummyOperationTypes {
		cases = append(cases, ValidationCase{
			Operation: operation.New(typ, temporal.Time(i), map[string]string{workload.KeyParam: key}),
		})
	}
	return cases
}

func (d *DummyDb) Close() error {
	return nil
}
