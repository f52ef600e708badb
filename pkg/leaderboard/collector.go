// Package leaderboard collects daily leaderboard snapshots for every project tracked in
// the content database and stores them as one JSON document per project and business day.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/despreadlabs/leaderboard-collector/pkg/blob"
)

// Collector runs the whole pipeline: resolve entities, aggregate their windows and store
// one snapshot per entity.
type Collector struct {
	config     Config
	database   ContentDatabase
	aggregator *Aggregator
	store      *SnapshotStore
	location   *time.Location
	clock      clock.PassiveClock
}

// Option customizes a Collector.
type Option func(*Collector)

// WithLocation sets the zone business days are counted in.
func WithLocation(location *time.Location) Option {
	return func(c *Collector) {
		c.location = location
	}
}

// WithClock replaces the wall clock.
func WithClock(passiveClock clock.PassiveClock) Option {
	return func(c *Collector) {
		c.clock = passiveClock
	}
}

// WithWindows replaces the default lookback windows.
func WithWindows(windows []LookbackWindow) Option {
	return func(c *Collector) {
		c.aggregator.windows = windows
	}
}

// NewCollector wires a Collector. The content database may be built from config before
// config is validated: it is only contacted once Run has validated config.
func NewCollector(config Config, database ContentDatabase, fetcher WindowFetcher, blobs blob.Store, opts ...Option) (*Collector, error) {
	location, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("could not load time zone %s: %w", DefaultTimezone, err)
	}
	c := &Collector{
		config:     config,
		database:   database,
		aggregator: NewAggregator(fetcher, LookbackWindows),
		store:      NewSnapshotStore(blobs),
		location:   location,
		clock:      clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run performs one collection. An error is returned only when the run could not start or
// the entity list could not be determined; per-entity problems only shrink the result.
func (c *Collector) Run(ctx context.Context, logger *logrus.Entry) (*JobResult, error) {
	start := c.clock.Now()
	logger = logger.WithField("run", uuid.New().String())
	result, err := c.run(ctx, start, logger)
	runDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues(resultFailure).Inc()
		logger.WithError(err).Error("Collection run failed.")
		return nil, err
	}
	runsTotal.WithLabelValues(resultSuccess).Inc()
	lastSuccessfulRun.Set(float64(c.clock.Now().Unix()))
	logger.WithFields(logrus.Fields{
		"saved":    result.Count,
		"duration": c.clock.Since(start).String(),
	}).Info("Collection run finished.")
	return result, nil
}

func (c *Collector) run(ctx context.Context, now time.Time, logger *logrus.Entry) (*JobResult, error) {
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration is incomplete: %w", err)
	}
	businessDate := BusinessDate(now, c.location)
	logger = logger.WithField("business_date", businessDate)
	logger.Info("Starting collection run.")

	entities, err := NewResolver(c.database, c.config.NotionDatabaseID).Resolve(ctx, logger)
	if err != nil {
		return nil, err
	}

	result := &JobResult{Success: true, Saved: []SavedSnapshot{}}
	for _, entity := range entities {
		entityLogger := logger.WithField("group_id", entity.GroupID)
		snapshot := c.aggregator.Collect(ctx, entity.GroupID, businessDate, entityLogger)
		if snapshot == nil {
			entitiesSkipped.WithLabelValues(skipReasonNoData).Inc()
			entityLogger.Warn("No lookback window could be fetched, skipping entity.")
			continue
		}
		location, err := c.store.Save(ctx, snapshot)
		if err != nil {
			entitiesSkipped.WithLabelValues(skipReasonStoreFailed).Inc()
			entityLogger.WithError(err).Error("Failed to store snapshot.")
			continue
		}
		snapshotsWritten.Inc()
		entityLogger.WithFields(logrus.Fields{
			"windows":  windowKeys(snapshot),
			"location": location,
		}).Info("Stored snapshot.")
		result.Saved = append(result.Saved, SavedSnapshot{GroupID: entity.GroupID, URL: location})
	}
	result.Count = len(result.Saved)
	return result, nil
}

func windowKeys(snapshot *Snapshot) []string {
	keys := make([]string, 0, len(snapshot.Windows))
	for key := range snapshot.Windows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
