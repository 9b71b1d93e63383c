package model

import (
	"sort"
	"time"
)

// PendingOrder is the durable checkpoint of one order mid-workflow.
// StepIndex is the index into the flow of the next status to apply.
type PendingOrder struct {
	StepIndex    int    `json:"stepIndex"`
	ReceivableID string `json:"contaId"`
	OrderNumber  string `json:"numeroPedido"`
	TS           int64  `json:"ts"`
}

// PersistedState is the per-account durable record of handled receivables
// and orders mid-workflow. JSON field names match the original state files.
type PersistedState struct {
	Processed  map[string]int64        `json:"processedContaIds"`
	Pending    map[string]PendingOrder `json:"pendingPedidos"`
	LastSyncAt string                  `json:"lastSyncAt,omitempty"`
}

func NewPersistedState() PersistedState {
	return PersistedState{
		Processed: make(map[string]int64),
		Pending:   make(map[string]PendingOrder),
	}
}

// Normalize replaces nil maps after decoding older or partial state files.
func (s *PersistedState) Normalize() {
	if s.Processed == nil {
		s.Processed = make(map[string]int64)
	}
	if s.Pending == nil {
		s.Pending = make(map[string]PendingOrder)
	}
}

// PruneProcessed drops processed entries older than ttl, then enforces
// maxItems keeping the most recently touched entries.
func (s *PersistedState) PruneProcessed(ttl time.Duration, maxItems int, now time.Time) {
	cutoff := now.Add(-ttl).UnixMilli()
	for id, ts := range s.Processed {
		if ts == 0 || ts < cutoff {
			delete(s.Processed, id)
		}
	}

	if maxItems <= 0 || len(s.Processed) <= maxItems {
		return
	}

	type entry struct {
		id string
		ts int64
	}
	entries := make([]entry, 0, len(s.Processed))
	for id, ts := range s.Processed {
		entries = append(entries, entry{id, ts})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	for _, e := range entries[maxItems:] {
		delete(s.Processed, e.id)
	}
}

// PrunePending drops pending entries older than ttl. Pending orders are
// in-progress work and are never size-bounded.
func (s *PersistedState) PrunePending(ttl time.Duration, now time.Time) {
	cutoff := now.Add(-ttl).UnixMilli()
	for id, p := range s.Pending {
		if p.TS == 0 || p.TS < cutoff {
			delete(s.Pending, id)
		}
	}
}
