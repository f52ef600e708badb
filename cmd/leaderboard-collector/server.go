package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/despreadlabs/leaderboard-collector/pkg/httphelper"
	"github.com/despreadlabs/leaderboard-collector/pkg/leaderboard"
)

type collector interface {
	Run(ctx context.Context, logger *logrus.Entry) (*leaderboard.JobResult, error)
}

type server struct {
	collector     collector
	triggerSecret string

	// runs from the endpoint and the schedule never overlap
	lock sync.Mutex
}

func (s *server) run(ctx context.Context, logger *logrus.Entry) (*leaderboard.JobResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.collector.Run(ctx, logger)
}

func (s *server) router(metrics *httphelper.Metrics) *httphelper.Router {
	router := httphelper.NewRouter(metrics, logrus.WithField("component", "trigger"))
	router.GET("/api/cron/storyteller", s.handleTrigger)
	router.GET("/trigger", s.handleTrigger)
	return router
}

// schedule runs a collection on every tick of the cron expression, evaluated in UTC.
func (s *server) schedule(expression string) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, err := scheduler.AddFunc(expression, func() {
		// failures are logged by the collector, stopping the scheduler waits for the run
		_, _ = s.run(context.Background(), logrus.WithField("trigger", "schedule"))
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

func authorized(secret, header string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+secret)) == 1
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleTrigger(l *logrus.Entry, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !authorized(s.triggerSecret, r.Header.Get("Authorization")) {
		l.Warn("Rejecting trigger with a missing or wrong bearer token.")
		writeJSON(l, w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	// a run is never cut short, neither by the caller hanging up nor by shutdown which
	// waits for it within the grace period
	result, err := s.run(context.WithoutCancel(r.Context()), l)
	if err != nil {
		writeJSON(l, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(l, w, http.StatusOK, result)
}

func writeJSON(l *logrus.Entry, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		l.WithError(err).Warn("Failed to write response.")
	}
}
