package peer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/temporal"
)

const completionTimeKeyPrefix = "ldbc:driver:gct:"

// Values are stored zero padded to a fixed width so the script can compare them as strings; Lua numbers
// cannot represent every nanosecond timestamp.
var publishScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == false or ARGV[2] > current then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// RedisExchange keeps the completion times of one run in a hash named after the run.
type RedisExchange struct {
	db  redis.UniversalClient
	key string
}

func NewRedisExchange(db redis.UniversalClient, runId string) *RedisExchange {
	return &RedisExchange{db: db, key: completionTimeKeyPrefix + runId}
}

func (r *RedisExchange) Publish(_ context.Context, peerId string, t temporal.Time) error {
	if t < 0 {
		return errors.Errorf("cannot publish negative completion time %d for %s", int64(t), peerId)
	}
	err := publishScript.Run(r.db, []string{r.key}, peerId, encode(t)).Err()
	if err != nil {
		return errors.Wrapf(err, "error publishing completion time of %s", peerId)
	}
	return nil
}

func (r *RedisExchange) Fetch(_ context.Context, peerIds []string) (map[string]temporal.Time, error) {
	result := map[string]temporal.Time{}
	if len(peerIds) == 0 {
		return result, nil
	}
	values, err := r.db.HMGet(r.key, peerIds...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error fetching peer completion times")
	}
	for i, value := range values {
		s, ok := value.(string)
		if !ok {
			continue
		}
		t, err := decode(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid completion time stored for %s", peerIds[i])
		}
		result[peerIds[i]] = t
	}
	return result, nil
}

func (r *RedisExchange) Close() error {
	return r.db.Close()
}

func encode(t temporal.Time) string {
	return fmt.Sprintf("%020d", int64(t))
}

func decode(s string) (temporal.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return temporal.Time(v), err
}
