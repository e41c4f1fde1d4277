package flairbot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Ledger tracks which posts have already received a reminder, plus the
// instant before which posts are never acted on. It is owned by the single
// run loop; there is no concurrent access.
type Ledger struct {
	path          string
	ids           []string
	trackingStart time.Time
	fresh         bool
}

// ledgerState is the persisted form. initial_time is epoch seconds, kept
// numeric for compatibility with state files written by earlier versions.
type ledgerState struct {
	RemindedIDs []string `json:"reminded_ids"`
	InitialTime float64  `json:"initial_time"`
}

// LoadLedger reads the state file at path. A missing file starts a fresh
// ledger with tracking start set to now. An unreadable file does the same
// and returns the parse error so the caller can log it; the returned ledger
// is always usable. A legacy file containing a bare array of ids loads with
// tracking start at the epoch, meaning no retroactive cutoff.
func LoadLedger(path string, now time.Time) (*Ledger, error) {
	l := &Ledger{
		path:          path,
		trackingStart: now,
		fresh:         true,
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, fmt.Errorf("failed to read state file: %w", err)
	}

	var state ledgerState
	if err := json.Unmarshal(b, &state); err == nil {
		l.ids = state.RemindedIDs
		l.trackingStart = time.Unix(int64(state.InitialTime), 0).UTC()
		l.fresh = false
		return l, nil
	}

	var legacy []string
	if err := json.Unmarshal(b, &legacy); err == nil {
		l.ids = legacy
		l.trackingStart = time.Unix(0, 0).UTC()
		l.fresh = false
		return l, nil
	}

	return l, fmt.Errorf("state file is not valid json, starting fresh")
}

// Fresh reports whether no previous state was recovered.
func (l *Ledger) Fresh() bool {
	return l.fresh
}

func (l *Ledger) TrackingStart() time.Time {
	return l.trackingStart
}

// SetTrackingStart overrides the cutoff, for the operator flag.
func (l *Ledger) SetTrackingStart(t time.Time) {
	l.trackingStart = t
}

func (l *Ledger) Len() int {
	return len(l.ids)
}

func (l *Ledger) Reminded(id string) bool {
	return slices.Contains(l.ids, id)
}

// MarkReminded appends id unless it is already tracked.
func (l *Ledger) MarkReminded(id string) {
	if slices.Contains(l.ids, id) {
		return
	}
	l.ids = append(l.ids, id)
}

// Unmark drops id from the ledger. Called after a removal, since the post
// will no longer appear in the new listing.
func (l *Ledger) Unmark(id string) {
	if i := slices.Index(l.ids, id); i >= 0 {
		l.ids = slices.Delete(l.ids, i, i+1)
	}
}

// Prune evicts the oldest entries until at most max remain, returning how
// many were dropped. Entries for posts that were removed by someone else fall
// out of the listing without ever being unmarked, so the ledger would grow
// without bound otherwise. Eviction can in rare cases drop a post that
// backflows into a later listing, costing one duplicate reminder.
func (l *Ledger) Prune(max int) int {
	if max <= 0 || len(l.ids) <= max {
		return 0
	}
	n := len(l.ids) - max
	l.ids = slices.Clone(l.ids[n:])
	return n
}

// Save writes the state file, via a temp file and rename so a crash mid-write
// leaves the previous state intact.
func (l *Ledger) Save() error {
	state := ledgerState{
		RemindedIDs: l.ids,
		InitialTime: float64(l.trackingStart.Unix()),
	}
	if state.RemindedIDs == nil {
		state.RemindedIDs = []string{}
	}

	b, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return os.Rename(tmp, l.path)
}
