// Package db connects the driver to the system under test. Each adapter registers one execute function
// per operation type it supports.
package db

import (
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/handler"
)

const (
	DummyDbName = "dummy"
	RedisDbName = "redis"
)

type Db interface {
	Name() string
	RegisterOperationHandlers(registry *handler.Registry) error
	// ValidationCases returns operations covering every registered type, using key where a key is needed.
	ValidationCases(key string) []ValidationCase
	Close() error
}

// New returns the adapter selected by config.Name.
func New(config configuration.DbConfig, clk clock.Clock) (Db, error) {
	switch config.Name {
	case DummyDbName:
		return NewDummyDb(config.Dummy, clk), nil
	case RedisDbName:
		return NewRedisDb(config.Redis)
	}
	return nil, errors.Errorf("unknown db %q; expected one of %q, %q", config.Name, DummyDbName, RedisDbName)
}
