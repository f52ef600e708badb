package leaderboard

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Aggregator collects every lookback window of an entity into one Snapshot.
type Aggregator struct {
	fetcher WindowFetcher
	windows []LookbackWindow
}

// NewAggregator creates an Aggregator over the given windows.
func NewAggregator(fetcher WindowFetcher, windows []LookbackWindow) *Aggregator {
	return &Aggregator{fetcher: fetcher, windows: windows}
}

// Collect fetches all windows concurrently and returns nil when none of them succeeded.
func (a *Aggregator) Collect(ctx context.Context, groupID, businessDate string, logger *logrus.Entry) *Snapshot {
	if len(a.windows) == 0 {
		return nil
	}
	payloads := make([]json.RawMessage, len(a.windows))
	g := errgroup.Group{}
	g.SetLimit(len(a.windows))
	for i, window := range a.windows {
		g.Go(func() error {
			if payload, ok := a.fetcher.Fetch(ctx, groupID, window, logger.WithField("window", window.Key())); ok {
				payloads[i] = payload
			}
			return nil
		})
	}
	_ = g.Wait()

	windows := map[string]json.RawMessage{}
	for i, payload := range payloads {
		if payload != nil {
			windows[a.windows[i].Key()] = payload
		}
	}
	if len(windows) == 0 {
		return nil
	}
	return &Snapshot{GroupID: groupID, BusinessDate: businessDate, Windows: windows}
}
