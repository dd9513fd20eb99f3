package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetmind",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Backend requests by method and outcome.",
	}, []string{"method", "outcome"})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meetmind",
		Subsystem: "client",
		Name:      "token_refresh_total",
		Help:      "Token refresh attempts by outcome.",
	}, []string{"outcome"})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
