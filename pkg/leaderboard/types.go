package leaderboard

import (
	"encoding/json"
	"errors"
	"strconv"

	kerrors "k8s.io/apimachinery/pkg/util/errors"
)

// LookbackWindow is a depth of history, in days, requested from the metrics API.
type LookbackWindow int

// Key is how the window is addressed in a stored snapshot.
func (w LookbackWindow) Key() string {
	return strconv.Itoa(int(w))
}

func (w LookbackWindow) String() string {
	return w.Key() + "d"
}

// LookbackWindows is the fixed set of windows collected for every entity.
var LookbackWindows = []LookbackWindow{7, 14, 30, 90}

// Config holds the settings a run needs, resolved once at process start.
type Config struct {
	// NotionToken authenticates against the content database.
	NotionToken string
	// NotionDatabaseID identifies the database listing tracked projects.
	NotionDatabaseID string
	// TriggerSecret, when set, must be presented as a bearer token to trigger a run.
	TriggerSecret string
}

// Validate ensures the settings required to contact upstreams are present.
func (c Config) Validate() error {
	var errs []error
	if c.NotionToken == "" {
		errs = append(errs, errors.New("the Notion token is not configured"))
	}
	if c.NotionDatabaseID == "" {
		errs = append(errs, errors.New("the Notion database id is not configured"))
	}
	return kerrors.NewAggregate(errs)
}

// Entity is a tracked project whose group identifier could be resolved.
type Entity struct {
	PageID  string
	GroupID string
}

// Snapshot is everything collected for one entity on one business day.
type Snapshot struct {
	GroupID      string
	BusinessDate string
	// Windows maps LookbackWindow.Key() to the untouched metrics API payload;
	// only windows that were fetched successfully are present.
	Windows map[string]json.RawMessage
}

// SavedSnapshot reports where a snapshot was written.
type SavedSnapshot struct {
	GroupID string `json:"groupId"`
	URL     string `json:"url"`
}

// JobResult summarizes one run.
type JobResult struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Saved   []SavedSnapshot `json:"saved"`
}
