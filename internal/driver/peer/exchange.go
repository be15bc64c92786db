// Package peer shares completion times between driver processes taking part in one distributed run.
//
// Each process publishes its local completion time to a shared store and reads back the values of
// every other process. Stores only ever keep the largest value published for a peer, so stale or
// repeated publications are harmless.
package peer

import (
	"context"

	"github.com/pkg/errors"

	commonconfig "github.com/ldbc/driver/internal/common/config"
	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/temporal"
)

type Exchange interface {
	// Publish advertises t as the completion time of peerId, unless a later one was already published.
	Publish(ctx context.Context, peerId string, t temporal.Time) error
	// Fetch returns the latest completion time of every listed peer that has published one.
	Fetch(ctx context.Context, peerIds []string) (map[string]temporal.Time, error)
	Close() error
}

// NewExchange returns the exchange selected by config.Transport, scoped to config.RunId.
func NewExchange(config configuration.DistributedConfig) (Exchange, error) {
	switch config.Transport {
	case "redis":
		client, err := commonconfig.NewRedisClient(config.Redis)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to redis")
		}
		return NewRedisExchange(client, config.RunId), nil
	case "sqlite":
		return NewSqliteExchange(config.Sqlite, config.RunId)
	}
	return nil, errors.Errorf("unknown transport %q", config.Transport)
}
