package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

type registryDocument struct {
	Version int               `json:"version"`
	IDs     map[string]string `json:"ids"` // spot name -> stable id
}

// ResolveSpotIDs maps configured spot names to stable identifiers. Names
// seen before keep their persisted id across restarts; new names get a
// fresh uuid, and the updated index is written back.
func ResolveSpotIDs(db *sql.DB, names []string) map[string]string {
	ids := map[string]string{}
	body, version, ok, err := LoadDocument(db, namespaceSpotRegistry)
	if err != nil {
		log.Printf("registry load error (cold start): %v", err)
	} else if ok && version == storageVersion {
		var doc registryDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			log.Printf("registry decode error (cold start): %v", err)
		} else if doc.IDs != nil {
			ids = doc.IDs
		}
	}

	changed := false
	for _, name := range names {
		if _, exists := ids[name]; !exists {
			ids[name] = uuid.NewString()
			changed = true
		}
	}

	if changed {
		doc := registryDocument{Version: storageVersion, IDs: ids}
		encoded, err := json.Marshal(doc)
		if err != nil {
			log.Printf("registry encode error: %v", err)
			return ids
		}
		if err := SaveDocument(db, namespaceSpotRegistry, storageVersion, encoded); err != nil {
			log.Printf("registry save error: %v", err)
		}
	}
	return ids
}

// Registry is the explicit top-level owner of every spot orchestrator. It
// replaces any ambient "find the spots" lookup: components that need to
// enumerate spots get the registry injected.
type Registry struct {
	spots  map[string]*Spot // by id
	byName map[string]*Spot // by lowercased name
	order  []string         // ids, config order
}

func NewRegistry() *Registry {
	return &Registry{
		spots:  map[string]*Spot{},
		byName: map[string]*Spot{},
	}
}

func (r *Registry) Add(spot *Spot) {
	r.spots[spot.ID()] = spot
	r.byName[strings.ToLower(spot.Name())] = spot
	r.order = append(r.order, spot.ID())
}

func (r *Registry) Get(id string) (*Spot, bool) {
	spot, ok := r.spots[id]
	return spot, ok
}

// Lookup resolves either an id or a case-insensitive name.
func (r *Registry) Lookup(ref string) (*Spot, bool) {
	if spot, ok := r.spots[ref]; ok {
		return spot, true
	}
	spot, ok := r.byName[strings.ToLower(strings.TrimSpace(ref))]
	return spot, ok
}

func (r *Registry) Spots() []*Spot {
	out := make([]*Spot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.spots[id])
	}
	return out
}

// Command surface. Each command is a fire-and-forget dispatch into the
// orchestrator; only dispatch errors (unknown spot, bad arguments) come
// back, never check outcomes.

func (r *Registry) Check(ref string) error {
	spot, ok := r.Lookup(ref)
	if !ok {
		return fmt.Errorf("unknown spot %q", ref)
	}
	go spot.Check(ReasonService)
	return nil
}

func (r *Registry) CheckAll() {
	for _, spot := range r.Spots() {
		go spot.Check(ReasonCheckAll)
	}
}

func (r *Registry) Reset(ref string) error {
	spot, ok := r.Lookup(ref)
	if !ok {
		return fmt.Errorf("unknown spot %q", ref)
	}
	go spot.Reset()
	return nil
}

func (r *Registry) Snooze(ref string, minutes int) error {
	if minutes < 1 || minutes > 1440 {
		return fmt.Errorf("snooze duration must be 1..1440 minutes, got %d", minutes)
	}
	spot, ok := r.Lookup(ref)
	if !ok {
		return fmt.Errorf("unknown spot %q", ref)
	}
	spot.Snooze(minutes)
	return nil
}

func (r *Registry) Unsnooze(ref string) error {
	spot, ok := r.Lookup(ref)
	if !ok {
		return fmt.Errorf("unknown spot %q", ref)
	}
	spot.Unsnooze()
	return nil
}

// Aggregate read-only views.

func (r *Registry) Summaries() []SpotSummary {
	out := make([]SpotSummary, 0, len(r.order))
	for _, spot := range r.Spots() {
		out = append(out, spot.Summary())
	}
	return out
}

func (r *Registry) SpotCount() int {
	return len(r.spots)
}

// NeedingAttention counts spots with unsorted items. Snoozed spots are
// excluded: a snoozed spot reports no attention need.
func (r *Registry) NeedingAttention() int {
	count := 0
	for _, summary := range r.Summaries() {
		if summary.NeedsAttention {
			count++
		}
	}
	return count
}

func (r *Registry) AllSorted() bool {
	for _, spot := range r.Spots() {
		if !spot.State().Sorted {
			return false
		}
	}
	return len(r.spots) > 0
}

// NextScheduledCheck returns the earliest armed timer across spots, or the
// zero time when no timer is armed.
func (r *Registry) NextScheduledCheck() time.Time {
	var earliest time.Time
	for _, spot := range r.Spots() {
		next := spot.NextCheck()
		if next.IsZero() {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}

// OverdueSpots lists spots whose last check is older than the threshold.
func (r *Registry) OverdueSpots() []SpotSummary {
	var out []SpotSummary
	for _, summary := range r.Summaries() {
		if summary.Overdue {
			out = append(out, summary)
		}
	}
	return out
}

// StopAll cancels every spot's scheduler, then waits for in-flight checks to
// finish publishing.
func (r *Registry) StopAll() {
	for _, spot := range r.Spots() {
		spot.StopScheduler()
	}
	for _, spot := range r.Spots() {
		spot.WaitIdle()
	}
}
