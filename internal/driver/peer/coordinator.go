package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// CompletionTimeService is the part of the completion time service the coordinator drives.
type CompletionTimeService interface {
	LocalCompletionTime() temporal.Time
	RegisterPeerSource(peerId string)
	SubmitPeerCompletedTime(peerId string, t temporal.Time) error
}

// Coordinator keeps this process and its peers informed of each other's completion times.
type Coordinator struct {
	peerId        string
	peerIds       []string
	exchange      Exchange
	service       CompletionTimeService
	errorReporter reporting.ErrorReporter

	// Serialises heartbeats so fetched values are applied in the order they were read.
	mu sync.Mutex
}

// NewCoordinator registers every peer with service, so that the global completion time waits for peers
// that have not yet published anything.
func NewCoordinator(
	peerId string,
	peerIds []string,
	exchange Exchange,
	service CompletionTimeService,
	errorReporter reporting.ErrorReporter,
) *Coordinator {
	for _, id := range peerIds {
		service.RegisterPeerSource(id)
	}
	return &Coordinator{
		peerId:        peerId,
		peerIds:       peerIds,
		exchange:      exchange,
		service:       service,
		errorReporter: errorReporter,
	}
}

func (c *Coordinator) Id() string {
	return c.peerId
}

// Heartbeat publishes the local completion time and applies the latest values of every peer. Failures
// are reported; a heartbeat never stops the run.
func (c *Coordinator) Heartbeat(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lct := c.service.LocalCompletionTime(); lct != temporal.MinTime {
		if err := c.exchange.Publish(ctx, c.peerId, lct); err != nil {
			c.errorReporter.ReportError(c, reporting.StackTraceToString(err))
		}
	}

	values, err := c.exchange.Fetch(ctx, c.peerIds)
	if err != nil {
		c.errorReporter.ReportError(c, reporting.StackTraceToString(err))
		return
	}
	for id, t := range values {
		if err := c.service.SubmitPeerCompletedTime(id, t); err != nil {
			c.errorReporter.ReportError(c, fmt.Sprintf("Rejected completion time of peer %s: %s", id, err))
		}
	}
	log.WithField("peer", c.peerId).Debugf("Heartbeat applied %d of %d peer completion times", len(values), len(c.peerIds))
}

// PublishFinal publishes the local completion time, retrying every backoff until it succeeds or ctx is
// done. It returns false if the value could not be published.
func (c *Coordinator) PublishFinal(ctx context.Context, backoff time.Duration) bool {
	lct := c.service.LocalCompletionTime()
	if lct == temporal.MinTime {
		return true
	}
	published := false
	util.RetryUntilSuccess(
		ctx,
		backoff,
		func() error {
			if err := c.exchange.Publish(ctx, c.peerId, lct); err != nil {
				return err
			}
			published = true
			return nil
		},
		func(err error) {
			log.WithField("peer", c.peerId).WithError(err).Warn("Failed to publish final completion time, retrying")
		},
	)
	return published
}
