// Package conflict reconciles a local and a remote version of the same record.
//
// Decisions, in priority order:
//  1. exactly one side deleted: the strictly newer side wins, a tie keeps the deletion
//  2. both deleted: the remote tombstone wins
//  3. ordering timestamps less than SimultaneityWindow apart: identical significant
//     fields collapse to the remote copy, otherwise the pair is queued for manual
//     review and last-write-wins is applied immediately
//  4. otherwise the strictly newer side wins, a tie prefers remote
//
// The returned record always keeps the local id.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/logging"
	"github.com/medadhere/backend/internal/models"
	"github.com/medadhere/backend/internal/uuid"
)

const (
	// SimultaneityWindow is the distance, in milliseconds, below which two
	// edits count as near-simultaneous.
	SimultaneityWindow int64 = 5000

	// MaxLogEntries caps the audit log.
	MaxLogEntries = 100
	// MaxUnresolved caps the manual-review queue.
	MaxUnresolved = 100
)

// Options carries per-call context.
type Options struct {
	// StorageKey names the collection the record belongs to.
	StorageKey string
}

// Resolution is the full outcome of one Resolve call.
type Resolution struct {
	Record       models.Record
	Type         models.ConflictType
	Winner       models.Winner
	Reason       string
	Unresolvable bool
}

// Resolver is safe for concurrent use. Apart from its audit log and
// unresolved queue it holds no state.
type Resolver struct {
	now func() time.Time

	mu         sync.Mutex
	log        []models.ConflictLogEntry
	logNext    int
	logFull    bool
	unresolved []models.UnresolvableConflict
	listeners  map[int]func(models.UnresolvableConflict)
	nextID     int
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		now:       time.Now,
		log:       make([]models.ConflictLogEntry, MaxLogEntries),
		listeners: make(map[int]func(models.UnresolvableConflict)),
	}
}

// SetClock overrides the time source used for audit timestamps.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve returns the record that should replace the local slot.
func (r *Resolver) Resolve(local, remote models.Record, opts Options) models.Record {
	return r.ResolveDetailed(local, remote, opts).Record
}

// ResolveDetailed is Resolve plus the decision metadata.
func (r *Resolver) ResolveDetailed(local, remote models.Record, opts Options) Resolution {
	res := decide(local, remote)
	res.Record = merge(local, remote, res.Winner)

	var flagged *models.UnresolvableConflict
	if res.Unresolvable {
		flagged = r.flag(local, remote, opts, res.Winner)
	}
	r.audit(local, remote, opts, res)

	logging.Debug("Conflict resolved", map[string]interface{}{
		"storageKey": opts.StorageKey,
		"recordId":   local.ID,
		"type":       string(res.Type),
		"winner":     string(res.Winner),
	})

	if flagged != nil {
		logging.Warn("Simultaneous edit queued for manual review", map[string]interface{}{
			"storageKey":      opts.StorageKey,
			"recordId":        local.ID,
			"conflictId":      flagged.ID,
			"localTimestamp":  flagged.LocalTimestamp,
			"remoteTimestamp": flagged.RemoteTimestamp,
		})
		r.notify(*flagged)
	}
	return res
}

// decide picks the winning side without touching any state.
func decide(local, remote models.Record) Resolution {
	lt, rt := local.OrderingTime(), remote.OrderingTime()

	switch {
	case local.Deleted != remote.Deleted:
		res := Resolution{Type: models.ConflictDeletion}
		localDeletes := local.Deleted
		switch {
		case lt > rt:
			res.Winner = models.WinnerLocal
		case rt > lt:
			res.Winner = models.WinnerCloud
		case localDeletes:
			res.Winner = models.WinnerLocal
		default:
			res.Winner = models.WinnerCloud
		}
		if (res.Winner == models.WinnerLocal) == localDeletes {
			res.Reason = "deletion is newer"
		} else {
			res.Reason = "edit is newer than deletion, restoring"
		}
		if lt == rt {
			res.Reason = "equal timestamps, deletion kept"
		}
		return res

	case local.Deleted && remote.Deleted:
		return Resolution{Type: models.ConflictBothDeleted, Winner: models.WinnerCloud, Reason: "both deleted"}
	}

	if abs(lt-rt) < SimultaneityWindow {
		if significantEqual(local, remote) {
			return Resolution{Type: models.ConflictDuplicate, Winner: models.WinnerCloud, Reason: "near-simultaneous duplicate"}
		}
		res := lastWriteWins(lt, rt)
		res.Type = models.ConflictSimultaneous
		res.Reason = "near-simultaneous edit, " + res.Reason
		res.Unresolvable = true
		return res
	}

	res := lastWriteWins(lt, rt)
	res.Type = models.ConflictLastWriteWins
	return res
}

func lastWriteWins(lt, rt int64) Resolution {
	switch {
	case lt > rt:
		return Resolution{Winner: models.WinnerLocal, Reason: "local is newer"}
	case rt > lt:
		return Resolution{Winner: models.WinnerCloud, Reason: "remote is newer"}
	default:
		return Resolution{Winner: models.WinnerCloud, Reason: "equal timestamps, remote preferred"}
	}
}

// merge builds the record for the local slot from the winning side.
// The local id is kept, and cloudId and syncedAt come from the remote copy.
func merge(local, remote models.Record, winner models.Winner) models.Record {
	var out models.Record
	if winner == models.WinnerLocal {
		out = local.Clone()
	} else {
		out = remote.Clone()
	}

	out.ID = local.ID
	out.CloudID = remote.CloudID
	if out.CloudID == "" {
		out.CloudID = local.CloudID
	}
	if remote.OwnerID != "" {
		out.OwnerID = remote.OwnerID
	}
	if remote.SyncedAt != 0 {
		out.SyncedAt = remote.SyncedAt
	}
	return out
}

// significantEqual compares the fields a user would notice.
func significantEqual(a, b models.Record) bool {
	return norm(a.Name) == norm(b.Name) &&
		norm(a.Dosage) == norm(b.Dosage) &&
		norm(a.Time) == norm(b.Time) &&
		norm(a.Frequency) == norm(b.Frequency) &&
		a.Taken == b.Taken &&
		norm(a.Severity) == norm(b.Severity) &&
		sameSymptoms(a.Symptoms, b.Symptoms)
}

func norm(s string) string {
	return strings.TrimSpace(s)
}

func sameSymptoms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := normalizedSorted(a), normalizedSorted(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func normalizedSorted(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = norm(s)
	}
	sort.Strings(out)
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// flag queues a conflict for manual review unless the same pair is already queued.
func (r *Resolver) flag(local, remote models.Record, opts Options, applied models.Winner) *models.UnresolvableConflict {
	lt, rt := local.OrderingTime(), remote.OrderingTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.unresolved {
		if c.StorageKey == opts.StorageKey && c.RecordID == local.ID &&
			c.LocalTimestamp == lt && c.RemoteTimestamp == rt {
			return nil
		}
	}

	c := models.UnresolvableConflict{
		ID:              uuid.New(),
		StorageKey:      opts.StorageKey,
		RecordID:        local.ID,
		Local:           local.Clone(),
		Remote:          remote.Clone(),
		Applied:         applied,
		LocalTimestamp:  lt,
		RemoteTimestamp: rt,
		DetectedAt:      r.now().UnixMilli(),
	}
	r.unresolved = append(r.unresolved, c)
	if len(r.unresolved) > MaxUnresolved {
		r.unresolved = r.unresolved[len(r.unresolved)-MaxUnresolved:]
	}
	return &c
}

func (r *Resolver) audit(local, remote models.Record, opts Options, res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log[r.logNext] = models.ConflictLogEntry{
		ID:         uuid.New(),
		StorageKey: opts.StorageKey,
		RecordID:   local.ID,
		Type:       res.Type,
		Winner:     res.Winner,
		Reason:     res.Reason,
		Local:      local.Clone(),
		Remote:     remote.Clone(),
		ResolvedAt: r.now().UnixMilli(),
	}
	r.logNext = (r.logNext + 1) % len(r.log)
	if r.logNext == 0 {
		r.logFull = true
	}
}

// GetConflictLog returns the audit log, oldest first.
func (r *Resolver) GetConflictLog() []models.ConflictLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logLocked()
}

func (r *Resolver) logLocked() []models.ConflictLogEntry {
	var out []models.ConflictLogEntry
	if r.logFull {
		out = append(out, r.log[r.logNext:]...)
	}
	return append(out, r.log[:r.logNext]...)
}

// GetStatistics counts logged decisions by type and winning side.
func (r *Resolver) GetStatistics() models.ConflictStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := models.ConflictStatistics{
		ByType:     make(map[models.ConflictType]int),
		ByWinner:   make(map[models.Winner]int),
		Unresolved: len(r.unresolved),
	}
	for _, e := range r.logLocked() {
		stats.Total++
		stats.ByType[e.Type]++
		stats.ByWinner[e.Winner]++
	}
	return stats
}

// GetUnresolvedConflicts returns conflicts awaiting a manual decision.
func (r *Resolver) GetUnresolvedConflicts() []models.UnresolvableConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.UnresolvableConflict, len(r.unresolved))
	copy(out, r.unresolved)
	return out
}

// ResolveManually removes conflict id from the queue and returns the chosen
// version, carrying the local id and the remote cloud id. Callers persist it.
func (r *Resolver) ResolveManually(id string, choice models.Winner) (models.UnresolvableConflict, models.Record, error) {
	if choice != models.WinnerLocal && choice != models.WinnerCloud {
		return models.UnresolvableConflict{}, models.Record{}, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("invalid choice %q, want local or cloud", choice))
	}

	r.mu.Lock()
	idx := -1
	for i, c := range r.unresolved {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return models.UnresolvableConflict{}, models.Record{}, apperrors.New(apperrors.ErrSyncConflictNotFound, "conflict "+id+" not found")
	}
	c := r.unresolved[idx]
	r.unresolved = append(r.unresolved[:idx:idx], r.unresolved[idx+1:]...)
	r.mu.Unlock()

	rec := merge(c.Local, c.Remote, choice)
	r.audit(c.Local, c.Remote, Options{StorageKey: c.StorageKey}, Resolution{
		Type:   models.ConflictSimultaneous,
		Winner: choice,
		Reason: "manual choice",
	})

	logging.Info("Conflict resolved manually", map[string]interface{}{
		"conflictId": id,
		"recordId":   c.RecordID,
		"choice":     string(choice),
	})
	return c, rec, nil
}

// OnUnresolvable registers cb for newly queued conflicts. The returned func unsubscribes.
func (r *Resolver) OnUnresolvable(cb func(models.UnresolvableConflict)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = cb
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Resolver) notify(c models.UnresolvableConflict) {
	r.mu.Lock()
	cbs := make([]func(models.UnresolvableConflict), 0, len(r.listeners))
	for _, cb := range r.listeners {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(c)
	}
}
