package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/despreadlabs/leaderboard-collector/pkg/blob"
)

const (
	// DefaultTimezone is the zone business days are counted in.
	DefaultTimezone = "Asia/Seoul"

	businessDateLayout  = "2006-01-02"
	snapshotContentType = "application/json"
)

// BusinessDate is the calendar day before now in loc. A run always records the last
// complete day.
func BusinessDate(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 12, 0, 0, 0, loc).Format(businessDateLayout)
}

// SnapshotKey is the storage key of the snapshot of groupID for businessDate.
func SnapshotKey(groupID, businessDate string) string {
	return fmt.Sprintf("history/%s/%s.json", groupID, businessDate)
}

// SnapshotStore persists snapshots as JSON documents in a blob store.
type SnapshotStore struct {
	blobs blob.Store
}

// NewSnapshotStore creates a SnapshotStore on top of blobs.
func NewSnapshotStore(blobs blob.Store) *SnapshotStore {
	return &SnapshotStore{blobs: blobs}
}

// Encode renders the document stored for a snapshot: an object from window key to the
// untouched payload. Keys are sorted, so identical inputs encode to identical bytes.
func Encode(snapshot *Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snapshot.Windows)
	if err != nil {
		return nil, fmt.Errorf("could not marshal snapshot: %w", err)
	}
	return raw, nil
}

// Save writes the snapshot, replacing any earlier one for the same entity and day, and
// returns its public location.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *Snapshot) (string, error) {
	raw, err := Encode(snapshot)
	if err != nil {
		return "", err
	}
	key := SnapshotKey(snapshot.GroupID, snapshot.BusinessDate)
	location, err := s.blobs.Put(ctx, key, raw, snapshotContentType)
	if err != nil {
		return "", fmt.Errorf("could not store snapshot %s: %w", key, err)
	}
	return location, nil
}
