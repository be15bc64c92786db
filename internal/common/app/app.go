package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ldbc/driver/internal/common/drivercontext"
)

// CreateContextWithShutdown returns a context that will report done when SIGINT or SIGTERM is received.
func CreateContextWithShutdown() *drivercontext.Context {
	ctx, cancel := drivercontext.WithCancel(drivercontext.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			ctx.Log.Infof("Received %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx
}
