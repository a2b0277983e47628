// Package stats implements the read-only aggregation over the durable
// layout and live engine state: subject counts by derived
// state, bounded per-state samples, a durable size breakdown, and
// worker-pool/memory-cache occupancy.
package stats

import (
	"strings"
	"time"

	"github.com/chronikcache/chronikcache/internal/cacheengine"
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/substore"
)

// maxSamplesPerState bounds the per-state sample list to at most 5 subjects.
const maxSamplesPerState = 5

// Sample is one subject's bookkeeping, surfaced for introspection.
type Sample struct {
	Subject      string
	CreatedAt    time.Time
	LastAccessAt time.Time
	AccessCount  int
	NumTxs       int
}

// StateBreakdown is the subject count and bounded sample set for one
// derived state.
type StateBreakdown struct {
	Count   int
	Samples []Sample
}

// SizeBreakdown classifies durable bytes by key-prefix.
type SizeBreakdown struct {
	Transactions int64
	Metadata     int64
	Other        int64
}

// Snapshot is the full stats report. Config is populated by the
// caller (the facade) with whatever representation it wants to expose,
// since this package cannot import the root package without an import
// cycle.
type Snapshot struct {
	TotalSubjects     int
	ByState           map[string]StateBreakdown
	SizeTotal         int64
	Size              SizeBreakdown
	MemCacheEntries   int
	BuildQueueLength  int
	RepairQueueLength int
	Config            any
}

// Collect builds a Snapshot from the durable store and the live engine.
func Collect(store *substore.Store, eng *cacheengine.Engine, cfg any) (Snapshot, error) {
	subjects, err := store.ListSubjects()
	if err != nil {
		return Snapshot{}, err
	}

	seen := make(map[string]domain.Subject, len(subjects))
	for _, s := range subjects {
		seen[s.Key()] = s
	}
	for key := range eng.States() {
		if _, ok := seen[key]; !ok {
			if s, ok := subjectFromKey(key); ok {
				seen[key] = s
			}
		}
	}

	byState := make(map[string]StateBreakdown)
	for _, subject := range seen {
		name := eng.GetCacheStatus(subject).String()
		b := byState[name]
		b.Count++
		if len(b.Samples) < maxSamplesPerState {
			sample := Sample{Subject: subject.Key()}
			if meta, ok, err := store.Metadata(subject); err == nil && ok {
				sample.CreatedAt = meta.CreatedAt
				sample.LastAccessAt = meta.LastAccessAt
				sample.AccessCount = meta.AccessCount
				sample.NumTxs = meta.NumTxs
			}
			b.Samples = append(b.Samples, sample)
		}
		byState[name] = b
	}

	total, err := store.CalculateSize()
	if err != nil {
		return Snapshot{}, err
	}
	txBytes, metaBytes, otherBytes, err := store.SizeBreakdown()
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		TotalSubjects:     len(seen),
		ByState:           byState,
		SizeTotal:         total,
		Size:              SizeBreakdown{Transactions: txBytes, Metadata: metaBytes, Other: otherBytes},
		MemCacheEntries:   eng.MemCacheLen(),
		BuildQueueLength:  eng.BuildQueueLength(),
		RepairQueueLength: eng.RepairQueueLength(),
		Config:            cfg,
	}, nil
}

func subjectFromKey(key string) (domain.Subject, bool) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return domain.Subject{}, false
	}
	ns := domain.Namespace(key[:idx])
	if ns != domain.NamespaceAddress && ns != domain.NamespaceToken {
		return domain.Subject{}, false
	}
	return domain.Subject{Namespace: ns, ID: key[idx+1:]}, true
}
