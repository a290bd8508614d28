package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	namespaceSpotMemory   = "spot_memory"
	namespaceSpotRegistry = "spot_registry"
	storageVersion        = 1
)

type memoryDocument struct {
	Version  int                    `json:"version"`
	Memories map[string]*SpotMemory `json:"memories"`
}

// MemoryManager owns every spot's check history and derived patterns.
// All writes serialize under one mutex so whole-snapshot saves never
// interleave. A failed save is logged; the in-memory mapping stays the
// source of truth until the next successful save.
type MemoryManager struct {
	db       *sql.DB
	mu       sync.Mutex
	memories map[string]*SpotMemory
	now      func() time.Time
}

// NewMemoryManager loads the persisted snapshot. A missing or unreadable
// document is a cold start with an empty mapping, never a fatal error.
func NewMemoryManager(db *sql.DB) *MemoryManager {
	m := &MemoryManager{
		db:       db,
		memories: map[string]*SpotMemory{},
		now:      time.Now,
	}

	body, version, ok, err := LoadDocument(db, namespaceSpotMemory)
	if err != nil {
		log.Printf("memory load error (cold start): %v", err)
		return m
	}
	if !ok {
		return m
	}
	if version != storageVersion {
		log.Printf("memory document version=%d want=%d (cold start)", version, storageVersion)
		return m
	}

	var doc memoryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		log.Printf("memory decode error (cold start): %v", err)
		return m
	}
	if doc.Memories != nil {
		m.memories = doc.Memories
	}
	log.Printf("memory loaded spots=%d", len(m.memories))
	return m
}

// saveLocked serializes the full mapping. An emptied mapping clears the
// stored row entirely; loading then cold-starts. Callers hold m.mu.
func (m *MemoryManager) saveLocked() {
	if len(m.memories) == 0 {
		if err := DeleteDocument(m.db, namespaceSpotMemory); err != nil {
			log.Printf("memory clear error: %v", &PersistenceError{Namespace: namespaceSpotMemory, Err: err})
		}
		return
	}

	doc := memoryDocument{Version: storageVersion, Memories: m.memories}
	body, err := json.Marshal(doc)
	if err != nil {
		log.Printf("memory encode error: %v", err)
		return
	}
	if err := SaveDocument(m.db, namespaceSpotMemory, storageVersion, body); err != nil {
		log.Printf("memory save error: %v", &PersistenceError{Namespace: namespaceSpotMemory, Err: err})
	}
}

func (m *MemoryManager) getOrCreateLocked(spotID string) *SpotMemory {
	mem, ok := m.memories[spotID]
	if !ok {
		mem = &SpotMemory{SpotID: spotID, Patterns: SpotPatterns{Recurring: map[string]int{}}}
		m.memories[spotID] = mem
	}
	return mem
}

// RecordCheck appends a CheckRecord stamped "now", prunes records older than
// the retention window, recomputes patterns and persists the whole mapping.
func (m *MemoryManager) RecordCheck(spotID string, status CheckStatus, toSort, lookingGood []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem := m.getOrCreateLocked(spotID)
	now := m.now()
	mem.Records = append(mem.Records, CheckRecord{
		Timestamp:   now,
		Status:      status,
		ToSort:      toSort,
		LookingGood: lookingGood,
	})

	cutoff := now.AddDate(0, 0, -memoryRetentionDays)
	kept := mem.Records[:0]
	for _, rec := range mem.Records {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	mem.Records = kept

	mem.Patterns = RecomputePatterns(mem.Records, mem.Patterns.LongestStreak, now)
	m.saveLocked()

	log.Printf("memory recorded spot=%s status=%s to_sort=%d history=%d",
		spotID, status, len(toSort), len(mem.Records))
}

// RecordManualReset is an explicit streak credit: the user says "I fixed it".
// It bumps the streak by exactly one and appends no CheckRecord, so it never
// shows up in recurring-item or day-pattern statistics.
func (m *MemoryManager) RecordManualReset(spotID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem := m.getOrCreateLocked(spotID)
	mem.TotalResets++
	now := m.now()
	mem.LastReset = &now

	mem.Patterns.CurrentStreak++
	if mem.Patterns.CurrentStreak > mem.Patterns.LongestStreak {
		mem.Patterns.LongestStreak = mem.Patterns.CurrentStreak
	}
	m.saveLocked()
}

// Patterns returns a copy of the spot's derived patterns.
func (m *MemoryManager) Patterns(spotID string) SpotPatterns {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(spotID).Patterns
}

// TotalResets returns the spot's lifetime reset counter.
func (m *MemoryManager) TotalResets(spotID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(spotID).TotalResets
}

// IsRecurring reports whether an item name, normalized the same way pattern
// recomputation normalizes it, is currently recurring for the spot.
func (m *MemoryManager) IsRecurring(spotID, item string) bool {
	return m.RecurringCount(spotID, item) > 0
}

// RecurringCount returns how many times a recurring item has appeared, or 0.
func (m *MemoryManager) RecurringCount(spotID, item string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(spotID).Patterns.Recurring[normalizeItemName(item)]
}

// Delete drops a spot's memory and persists. Absent spots are a no-op.
func (m *MemoryManager) Delete(spotID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memories[spotID]; !ok {
		return
	}
	delete(m.memories, spotID)
	m.saveLocked()
}

// ContextSummary digests a spot's history into a few lines for the next
// analysis prompt. Calling it twice without intervening writes returns
// identical text (elapsed time is rounded to whole minutes at minimum).
func (m *MemoryManager) ContextSummary(spotID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem := m.getOrCreateLocked(spotID)
	if len(mem.Records) == 0 {
		return "First check - no history yet."
	}

	var lines []string

	last := mem.Records[len(mem.Records)-1]
	lines = append(lines, fmt.Sprintf("Last check: %s (%s)", last.Status, humanizeSince(m.now().Sub(last.Timestamp))))
	if len(last.ToSort) > 0 {
		preview := last.ToSort
		if len(preview) > 3 {
			preview = preview[:3]
		}
		lines = append(lines, "  Items that needed sorting: "+strings.Join(preview, ", "))
	}

	if len(mem.Patterns.Recurring) > 0 {
		lines = append(lines, "Recurring items: "+formatTopRecurring(mem.Patterns.Recurring, 3))
	}

	if mem.Patterns.CurrentStreak > 0 {
		lines = append(lines, fmt.Sprintf("Current streak: %d days sorted", mem.Patterns.CurrentStreak))
		if mem.Patterns.LongestStreak > mem.Patterns.CurrentStreak {
			lines = append(lines, fmt.Sprintf("Best streak ever: %d days", mem.Patterns.LongestStreak))
		}
	}

	if mem.Patterns.WorstDay != "" {
		lines = append(lines, "Toughest day: "+mem.Patterns.WorstDay)
	}
	if mem.Patterns.UsuallySortedBy != "" {
		lines = append(lines, "Usually sorted by: "+mem.Patterns.UsuallySortedBy)
	}

	lines = append(lines, fmt.Sprintf("Total checks in last 30 days: %d", len(mem.Records)))
	return strings.Join(lines, "\n")
}

// formatTopRecurring renders the n most frequent recurring items as
// "name (12x), other (8x)". Count descending, then name ascending.
func formatTopRecurring(recurring map[string]int, n int) string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(recurring))
	for name, count := range recurring {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s (%dx)", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}

func humanizeSince(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours())/24)
	case d >= time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		minutes := int(d.Minutes())
		if minutes < 0 {
			minutes = 0
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	}
}
