// Package httphelper wraps httprouter handlers with request logging and Prometheus instrumentation.
package httphelper

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// TraceResponseWriter records the status code and size of a response
type TraceResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	statusCode  int
	size        int
}

// WriteHeader writes the header to the response, remembering only the first status code
func (w *TraceResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write writes the body of the response
func (w *TraceResponseWriter) Write(data []byte) (int, error) {
	w.wroteHeader = true
	size, err := w.ResponseWriter.Write(data)
	w.size += size
	return size, err
}

// Metrics is responsible for holding the metrics for Prometheus
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// NewMetrics creates the request metrics under namespace and registers them
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "http request duration in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 20, 30, 45, 60, 120},
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "http response size in bytes",
				Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536},
			},
			[]string{"method", "path", "status"},
		),
	}
	registerer.MustRegister(m.HTTPRequestDuration, m.HTTPResponseSize)
	return m
}

// Handle is an httprouter handle that receives a request-scoped logger
type Handle func(*logrus.Entry, http.ResponseWriter, *http.Request, httprouter.Params)

// Router registers handles on an httprouter.Router, logging and instrumenting every request.
// Metrics are labelled with the registered route rather than the request path.
type Router struct {
	*httprouter.Router
	metrics   *Metrics
	logger    *logrus.Entry
	timeSince func(time.Time) time.Duration
}

// NewRouter creates a Router; metrics may be nil
func NewRouter(metrics *Metrics, logger *logrus.Entry) *Router {
	return &Router{
		Router:    httprouter.New(),
		metrics:   metrics,
		logger:    logger,
		timeSince: time.Since,
	}
}

func (r *Router) GET(path string, handle Handle) {
	r.Router.GET(path, r.wrap(http.MethodGet, path, handle))
}

func (r *Router) POST(path string, handle Handle) {
	r.Router.POST(path, r.wrap(http.MethodPost, path, handle))
}

func (r *Router) wrap(method, path string, handle Handle) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		start := time.Now()
		l := r.logger.WithFields(logrus.Fields{"request": uuid.New().String(), "path": req.URL.Path, "method": req.Method})
		trw := &TraceResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handle(l, trw, req, params)
		latency := r.timeSince(start)

		if r.metrics != nil {
			labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(trw.statusCode)}
			r.metrics.HTTPRequestDuration.With(labels).Observe(latency.Seconds())
			r.metrics.HTTPResponseSize.With(labels).Observe(float64(trw.size))
		}

		l = l.WithFields(logrus.Fields{
			"status":   trw.statusCode,
			"duration": latency.String(),
		})
		logFunc := l.Debug
		if trw.statusCode > 499 {
			logFunc = l.Error
		}
		logFunc("responded")
	}
}
