package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
)

// Collector holds the API's Prometheus metrics on a private registry.
type Collector struct {
	requests      *prometheus.CounterVec
	guessDuration prometheus.Histogram
	guessRuns     *prometheus.CounterVec
	confirmed     prometheus.Counter
	activeGuesses prometheus.Gauge

	registry *prometheus.Registry
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clguess_api_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})

	c.guessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clguess_guess_duration_seconds",
		Help:    "Duration of guess runs served by the API",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	c.guessRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clguess_guess_runs_total",
		Help: "Guess runs by outcome",
	}, []string{"outcome"})

	c.confirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clguess_mutations_confirmed_total",
		Help: "Mutations confirmed across all runs",
	})

	c.activeGuesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clguess_active_guesses",
		Help: "Guess runs in progress",
	})

	c.registry.MustRegister(c.requests, c.guessDuration, c.guessRuns, c.confirmed, c.activeGuesses)
	return c
}

// Middleware counts every request by matched route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requests.WithLabelValues(route, strconv.Itoa(ctx.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) guessStarted() func(report *smuggling.Report, err error) {
	c.activeGuesses.Inc()
	start := time.Now()

	return func(report *smuggling.Report, err error) {
		c.activeGuesses.Dec()
		c.guessDuration.Observe(time.Since(start).Seconds())

		outcome := "completed"
		switch {
		case err != nil:
			outcome = "failed"
		case report.NoSignal:
			outcome = "no_signal"
		}
		c.guessRuns.WithLabelValues(outcome).Inc()
		if report != nil {
			c.confirmed.Add(float64(len(report.Confirmed)))
		}
	}
}
