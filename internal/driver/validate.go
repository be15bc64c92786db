package driver

import (
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/common/drivercontext"
	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/db"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/workload"
)

// ValidateWorkload checks the workload a run with config would execute against the handlers of the
// configured database, without executing anything.
func ValidateWorkload(config configuration.DriverConfiguration) (*workload.ValidationResult, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.OperationCount == 0 {
		return nil, errors.New("operationCount must be set to validate an unbounded workload")
	}
	database, handlers, err := openDb(config)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(database.Name(), database)

	generator, err := newGenerator(config)
	if err != nil {
		return nil, err
	}
	return workload.Validate(generator, func(typ operation.Type) bool {
		_, ok := handlers.Lookup(typ)
		return ok
	})
}

// ValidateDb executes one validation case per registered operation type against the configured
// database and checks the results. Cases work on a key unique to this call.
func ValidateDb(ctx *drivercontext.Context, config configuration.DriverConfiguration) (*db.ValidationResult, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	database, handlers, err := openDb(config)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(database.Name(), database)

	key := "ldbc-driver-validation-" + util.NewULID()
	ctx.Log.Infof("Validating %s using key %s", database.Name(), key)
	return db.Validate(ctx, handlers, database.ValidationCases(key))
}

func openDb(config configuration.DriverConfiguration) (db.Db, *handler.Registry, error) {
	clk := clock.RealClock{}
	database, err := db.New(config.Db, clk)
	if err != nil {
		return nil, nil, err
	}
	handlers := handler.NewRegistry(clk)
	if err := database.RegisterOperationHandlers(handlers); err != nil {
		util.CloseResource(database.Name(), database)
		return nil, nil, err
	}
	return database, handlers, nil
}
