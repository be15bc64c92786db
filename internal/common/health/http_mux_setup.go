package health

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupHttpMux serves checker on /health and, if gatherer is non-nil, its metrics on /metrics.
func SetupHttpMux(mux *http.ServeMux, checker Checker, gatherer prometheus.Gatherer) {
	mux.Handle("/health", NewHealthCheckHttpHandler(checker))
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}
