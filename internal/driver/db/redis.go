package db

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	commonconfig "github.com/ldbc/driver/internal/common/config"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/workload"
)

// RedisDb runs the key-value workload against redis: read is GET, write is SET and delete is DEL.
// Keys are namespaced with the configured prefix.
type RedisDb struct {
	db        redis.UniversalClient
	keyPrefix string
}

func NewRedisDb(config configuration.RedisDbConfig) (*RedisDb, error) {
	client, err := commonconfig.NewRedisClient(config.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to redis")
	}
	return NewRedisDbWithClient(client, config.KeyPrefix), nil
}

func NewRedisDbWithClient(client redis.UniversalClient, keyPrefix string) *RedisDb {
	return &RedisDb{db: client, keyPrefix: keyPrefix}
}

func (r *RedisDb) Name() string {
	return RedisDbName
}

func (r *RedisDb) RegisterOperationHandlers(registry *handler.Registry) error {
	executes := map[operation.Type]handler.ExecuteFunc{
		workload.ReadOperation:   r.read,
		workload.WriteOperation:  r.write,
		workload.DeleteOperation: r.delete,
	}
	for typ, execute := range executes {
		if err := registry.Register(typ, execute); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisDb) key(op *operation.Operation) (string, error) {
	key := op.Param(workload.KeyParam)
	if key == "" {
		return "", &operation.DbError{Type: op.Type(), Message: "operation has no key"}
	}
	return r.keyPrefix + key, nil
}

// A missing key is a valid outcome of a read and yields a nil value.
func (r *RedisDb) read(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	key, err := r.key(op)
	if err != nil {
		return nil, err
	}
	value, err := r.db.Get(key).Result()
	if err == redis.Nil {
		return &operation.Result{}, nil
	}
	if err != nil {
		return nil, &operation.DbError{Type: op.Type(), Cause: err}
	}
	return &operation.Result{Value: value}, nil
}

func (r *RedisDb) write(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	key, err := r.key(op)
	if err != nil {
		return nil, err
	}
	if err := r.db.Set(key, op.Param(workload.ValueParam), 0).Err(); err != nil {
		return nil, &operation.DbError{Type: op.Type(), Cause: err}
	}
	return &operation.Result{}, nil
}

func (r *RedisDb) delete(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	key, err := r.key(op)
	if err != nil {
		return nil, err
	}
	deleted, err := r.db.Del(key).Result()
	if err != nil {
		return nil, &operation.DbError{Type: op.Type(), Cause: err}
	}
	return &operation.Result{Value: deleted}, nil
}

// ValidationCases writes, reads back and deletes key.
func (r *RedisDb) ValidationCases(key string) []ValidationCase {
	return keyValueValidationCases(key)
}

func (r *RedisDb) Close() error {
	return r.db.Close()
}
