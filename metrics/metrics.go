// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Submission outcomes recorded on contact_submissions_total.
const (
	OutcomeSent        = "sent"
	OutcomeRateLimited = "rate_limited"
	OutcomeHoneypot    = "honeypot"
	OutcomeSpam        = "spam"
	OutcomeInvalid     = "invalid"
	OutcomeSendFailed  = "send_failed"
	OutcomeConfigError = "config_error"
	OutcomeFlooded     = "flooded"
)

var (
	// reqDuration is labeled by chi route pattern, method, and status code.
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
		},
		[]string{"path", "method", "status"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact form submissions by outcome.",
		},
		[]string{"outcome"},
	)

	mailSend = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contact_mail_send_seconds",
			Help:    "Time spent handing a contact message to the mail transport.",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30},
		},
		[]string{"transport", "result"},
	)
)

// RegisterDefault registers the Go runtime and process collectors plus this
// service's HTTP and contact metrics. It is safe to call more than once.
//
// It panics (or logs fatally) if registration fails for any reason other
// than the collector already being registered.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "submission counter", submissions)
	mustRegister(logger, "mail send histogram", mailSend)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
		if logger != nil {
			logger.Fatal("failed to register "+name, zap.Error(err))
		}
		panic("metrics: failed to register " + name + ": " + err.Error())
	}
}

// Submission counts one contact submission with the given outcome.
func Submission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// MailSend observes one transport send.
func MailSend(transport string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mailSend.WithLabelValues(transport, result).Observe(d.Seconds())
}

// HTTPMetrics is a middleware that records request duration into the
// http_request_duration_seconds histogram.
//
// The path label is the chi route pattern; unmatched requests are grouped
// under "unmatched" so random probes cannot grow label cardinality.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		defer func() {
			rec := recover()
			status := ww.Status()
			switch {
			case rec != nil:
				status = http.StatusInternalServerError
			case status == 0:
				status = http.StatusOK
			case status < 100 || status > 599:
				status = http.StatusInternalServerError
			}

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
