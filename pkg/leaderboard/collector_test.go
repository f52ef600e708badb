package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	fakeclock "k8s.io/utils/clock/testing"

	"github.com/despreadlabs/leaderboard-collector/pkg/notion"
)

var validConfig = Config{NotionToken: "secret_token", NotionDatabaseID: "db"}

// 2025-03-02 09:00 in Seoul
var runTime = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

func newTestCollector(t *testing.T, config Config, database ContentDatabase, fetcher WindowFetcher, blobs *fakeBlobs) *Collector {
	t.Helper()
	collector, err := NewCollector(config, database, fetcher, blobs, WithClock(fakeclock.NewFakePassiveClock(runTime)))
	if err != nil {
		t.Fatalf("could not create collector: %v", err)
	}
	return collector
}

func twoEntityDatabase() *fakeDatabase {
	return &fakeDatabase{
		metadata: &notion.Database{ID: "db", DataSources: []notion.DataSourceRef{{ID: "a"}}},
		sources: map[string][]notion.Page{
			"a": {page("p1", richText("X")), page("p2", number(2)), page("p3", richText("Y"))},
		},
	}
}

func TestCollectorRun(t *testing.T) {
	testCases := []struct {
		name            string
		database        *fakeDatabase
		payloads        map[string]map[string]string
		blobErrs        map[string]error
		expected        *JobResult
		expectedObjects map[string]string
	}{
		{
			name:     "partial windows and an entity without data",
			database: twoEntityDatabase(),
			payloads: map[string]map[string]string{
				"X": {"7": `"A"`, "30": `"C"`, "90": `"D"`},
				"Y": {"14": `{"b":1}`},
			},
			expected: &JobResult{
				Success: true,
				Count:   2,
				Saved: []SavedSnapshot{
					{GroupID: "X", URL: "https://blobs.example.com/history/X/2025-03-01.json"},
					{GroupID: "Y", URL: "https://blobs.example.com/history/Y/2025-03-01.json"},
				},
			},
			expectedObjects: map[string]string{
				"history/X/2025-03-01.json": `{"30":"C","7":"A","90":"D"}`,
				"history/Y/2025-03-01.json": `{"14":{"b":1}}`,
			},
		},
		{
			name:     "store failure skips only that entity",
			database: twoEntityDatabase(),
			payloads: map[string]map[string]string{
				"X": {"7": `"A"`},
				"2": {"7": `"B"`},
				"Y": {"7": `"C"`},
			},
			blobErrs: map[string]error{"history/2/2025-03-01.json": errors.New("forbidden")},
			expected: &JobResult{
				Success: true,
				Count:   2,
				Saved: []SavedSnapshot{
					{GroupID: "X", URL: "https://blobs.example.com/history/X/2025-03-01.json"},
					{GroupID: "Y", URL: "https://blobs.example.com/history/Y/2025-03-01.json"},
				},
			},
			expectedObjects: map[string]string{
				"history/X/2025-03-01.json": `{"7":"A"}`,
				"history/Y/2025-03-01.json": `{"7":"C"}`,
			},
		},
		{
			name:     "nothing resolvable",
			database: &fakeDatabase{metadata: &notion.Database{ID: "db"}},
			expected: &JobResult{Success: true, Saved: []SavedSnapshot{}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blobs := &fakeBlobs{errs: tc.blobErrs}
			collector := newTestCollector(t, validConfig, tc.database, &fakeFetcher{payloads: tc.payloads}, blobs)
			actual, err := collector.Run(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, actual); diff != "" {
				t.Errorf("unexpected result: %s", diff)
			}
			if diff := cmp.Diff(tc.expectedObjects, blobs.objects); diff != "" {
				t.Errorf("unexpected stored objects: %s", diff)
			}
		})
	}
}

func TestCollectorRunFatal(t *testing.T) {
	testCases := []struct {
		name          string
		config        Config
		database      *fakeDatabase
		expectedCalls []string
	}{
		{
			name:     "missing token",
			config:   Config{NotionDatabaseID: "db"},
			database: twoEntityDatabase(),
		},
		{
			name:     "missing database id",
			config:   Config{NotionToken: "secret_token"},
			database: twoEntityDatabase(),
		},
		{
			name:          "metadata failure",
			config:        validConfig,
			database:      &fakeDatabase{metadataErr: &notion.APIError{StatusCode: 500}},
			expectedCalls: []string{"metadata:db"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			failures := testutil.ToFloat64(runsTotal.WithLabelValues(resultFailure))
			fetcher := &fakeFetcher{}
			blobs := &fakeBlobs{}
			result, err := newTestCollector(t, tc.config, tc.database, fetcher, blobs).Run(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
			if err == nil {
				t.Fatalf("expected an error, got result %v", result)
			}
			if result != nil {
				t.Errorf("expected no partial result, got %v", result)
			}
			if diff := cmp.Diff(tc.expectedCalls, tc.database.calls); diff != "" {
				t.Errorf("unexpected database calls: %s", diff)
			}
			if len(fetcher.calls) != 0 || len(blobs.puts) != 0 {
				t.Errorf("expected no metrics or storage calls, got %v and %v", fetcher.calls, blobs.puts)
			}
			if delta := testutil.ToFloat64(runsTotal.WithLabelValues(resultFailure)) - failures; delta != 1 {
				t.Errorf("expected the failed run to be counted once, got %v", delta)
			}
		})
	}
}

func TestCollectorRunIsIdempotent(t *testing.T) {
	blobs := &fakeBlobs{}
	fetcher := &fakeFetcher{payloads: map[string]map[string]string{
		"X": {"7": `{"rows":[1,2]}`, "14": `{"rows":[3]}`, "30": `{"rows":[]}`, "90": `{"rows":[4]}`},
	}}
	database := &fakeDatabase{metadata: &notion.Database{ID: "db"}, legacy: []notion.Page{page("p1", richText("X"))}}
	collector := newTestCollector(t, validConfig, database, fetcher, blobs)

	var first *JobResult
	for i := 0; i < 3; i++ {
		result, err := collector.Run(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first == nil {
			first = result
		} else if diff := cmp.Diff(first, result); diff != "" {
			t.Errorf("rerun produced a different result: %s", diff)
		}
	}
	if len(blobs.puts) != 3 {
		t.Fatalf("expected three writes, got %d", len(blobs.puts))
	}
	for _, p := range blobs.puts[1:] {
		if p.key != blobs.puts[0].key || p.data != blobs.puts[0].data {
			t.Errorf("rerun wrote %s=%s, expected %s=%s", p.key, p.data, blobs.puts[0].key, blobs.puts[0].data)
		}
	}
}

func TestCollectorBusinessDateFollowsLocation(t *testing.T) {
	blobs := &fakeBlobs{}
	fetcher := &fakeFetcher{payloads: map[string]map[string]string{"X": {"7": `1`}}}
	database := &fakeDatabase{metadata: &notion.Database{ID: "db"}, legacy: []notion.Page{page("p1", richText("X"))}}
	collector, err := NewCollector(validConfig, database, fetcher, blobs,
		WithClock(fakeclock.NewFakePassiveClock(runTime)),
		WithLocation(time.FixedZone("UTC-10", -10*60*60)),
		WithWindows([]LookbackWindow{7}),
	)
	if err != nil {
		t.Fatalf("could not create collector: %v", err)
	}
	if _, err := collector.Run(context.Background(), logrus.NewEntry(logrus.StandardLogger())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"history/X/2025-02-28.json": `{"7":1}`}, blobs.objects); diff != "" {
		t.Errorf("unexpected stored objects: %s", diff)
	}
	if diff := cmp.Diff(map[string]int{"X/7": 1}, fetcher.calls); diff != "" {
		t.Errorf("unexpected fetches: %s", diff)
	}
}

// eventLog records fetches and writes of a run in the order they happen.
type eventLog struct {
	lock   sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, event)
}

type loggingFetcher struct {
	log *eventLog
}

func (f *loggingFetcher) Fetch(_ context.Context, groupID string, window LookbackWindow, _ *logrus.Entry) (json.RawMessage, bool) {
	f.log.add("fetch " + groupID)
	return json.RawMessage(window.Key()), true
}

type loggingBlobs struct {
	log *eventLog
}

func (b *loggingBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	b.log.add("put " + key)
	return "https://blobs.example.com/" + key, nil
}

func TestCollectorRunProcessesEntitiesOneAtATime(t *testing.T) {
	log := &eventLog{}
	collector, err := NewCollector(validConfig, twoEntityDatabase(), &loggingFetcher{log: log}, &loggingBlobs{log: log},
		WithClock(fakeclock.NewFakePassiveClock(runTime)),
	)
	if err != nil {
		t.Fatalf("could not create collector: %v", err)
	}
	if _, err := collector.Run(context.Background(), logrus.NewEntry(logrus.StandardLogger())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var expected []string
	for _, groupID := range []string{"X", "2", "Y"} {
		for range LookbackWindows {
			expected = append(expected, "fetch "+groupID)
		}
		expected = append(expected, "put "+SnapshotKey(groupID, "2025-03-01"))
	}
	if diff := cmp.Diff(expected, log.events); diff != "" {
		t.Errorf("entities were not processed one after the other: %s", diff)
	}
}
