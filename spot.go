package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const overdueThresholdHours = 48

// Spot is the per-spot orchestrator: it sequences capture, analysis, result
// normalization, memory update and state publication, and owns the periodic
// scheduler plus snooze suppression. At most one check runs at a time per
// spot; a second trigger while one is in flight is a logged no-op.
type Spot struct {
	id       string
	cfg      SpotConfig
	memory   *MemoryManager
	analyzer Analyzer
	source   ImageSource
	bus      *Bus
	now      func() time.Time

	mu          sync.Mutex
	wg          sync.WaitGroup
	state       SpotCheckState
	inFlight    bool
	snoozeUntil time.Time
	nextCheck   time.Time
	stop        chan struct{}
}

func NewSpot(id string, cfg SpotConfig, memory *MemoryManager, analyzer Analyzer, source ImageSource, bus *Bus) *Spot {
	s := &Spot{
		id:       id,
		cfg:      cfg,
		memory:   memory,
		analyzer: analyzer,
		source:   source,
		bus:      bus,
		now:      time.Now,
	}
	patterns := memory.Patterns(id)
	s.state.CurrentStreak = patterns.CurrentStreak
	s.state.LongestStreak = patterns.LongestStreak
	return s
}

func (s *Spot) ID() string   { return s.id }
func (s *Spot) Name() string { return s.cfg.Name }

// State returns a copy of the published projection.
func (s *Spot) State() SpotCheckState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Spot) SnoozedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snoozeUntil
}

func (s *Spot) IsSnoozed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.snoozeUntil)
}

func (s *Spot) NextCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCheck
}

// IsOverdue reports whether the last completed check is older than the
// overdue threshold. Never-checked spots are not overdue.
func (s *Spot) IsOverdue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastChecked.IsZero() {
		return false
	}
	return s.now().Sub(s.state.LastChecked) > overdueThresholdHours*time.Hour
}

// Summary is the read-only view aggregates and the status report consume.
func (s *Spot) Summary() SpotSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	snoozed := now.Before(s.snoozeUntil)
	needsAttention := !s.state.Sorted && len(s.state.ToSort) > 0 && !snoozed
	overdue := !s.state.LastChecked.IsZero() && now.Sub(s.state.LastChecked) > overdueThresholdHours*time.Hour
	summary := SpotSummary{
		ID:             s.id,
		Name:           s.cfg.Name,
		Sorted:         s.state.Sorted,
		Status:         s.state.Status,
		ToSortCount:    len(s.state.ToSort),
		CurrentStreak:  s.state.CurrentStreak,
		LongestStreak:  s.state.LongestStreak,
		LastChecked:    s.state.LastChecked,
		NextCheck:      s.nextCheck,
		Overdue:        overdue,
		NeedsAttention: needsAttention,
	}
	if snoozed {
		summary.SnoozedUntil = s.snoozeUntil
	}
	return summary
}

// Check runs one full check invocation. Failures are terminal for the
// invocation; the next scheduler tick or manual trigger is the only retry.
func (s *Spot) Check(reason CheckReason) {
	now := s.now()

	s.mu.Lock()
	if reason == ReasonAuto && now.Before(s.snoozeUntil) {
		s.mu.Unlock()
		log.Printf("spot check skipped (snoozed) spot=%q until=%s", s.cfg.Name, s.snoozeUntil.Format(time.RFC3339))
		return
	}
	if s.inFlight {
		s.mu.Unlock()
		log.Printf("spot check skipped (in flight) spot=%q reason=%s", s.cfg.Name, reason)
		return
	}
	s.inFlight = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	log.Printf("spot check start spot=%q reason=%s", s.cfg.Name, reason)

	raw, err := s.source.Capture()
	if err != nil {
		log.Printf("spot capture error spot=%q: %v", s.cfg.Name, err)
		s.publishFailure(now, "Camera error: "+err.Error())
		return
	}
	image, err := PrepareImage(raw)
	if err != nil {
		log.Printf("spot image error spot=%q: %v", s.cfg.Name, err)
		s.publishFailure(now, "Camera error: "+err.Error())
		return
	}

	req := AnalyzeRequest{
		SpotName:       s.cfg.Name,
		Definition:     s.cfg.Definition,
		VoicePrompt:    ResolveVoicePrompt(s.cfg.Voice, s.cfg.CustomVoicePrompt),
		ContextSummary: s.memory.ContextSummary(s.id),
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(context.Background(), image, req)
	latency := time.Since(start)
	if err != nil {
		log.Printf("spot analysis error spot=%q: %v", s.cfg.Name, err)
		s.publishFailure(now, err.Error())
		return
	}

	// Record first so recurring lookups below see this check's items too:
	// an item on its third consecutive appearance is already recurring in
	// the state published for that same check.
	itemNames := make([]string, len(result.ToSort))
	for i, item := range result.ToSort {
		itemNames[i] = item.Item
	}
	s.memory.RecordCheck(s.id, result.Status, itemNames, result.LookingGood)

	toSort := make([]ToSortItem, 0, len(result.ToSort))
	for _, item := range result.ToSort {
		toSort = append(toSort, ToSortItem{
			Item:           item.Item,
			Location:       item.Location,
			Recurring:      s.memory.IsRecurring(s.id, item.Item),
			RecurringCount: s.memory.RecurringCount(s.id, item.Item),
		})
	}

	patterns := s.memory.Patterns(s.id)
	state := SpotCheckState{
		Sorted:        result.Status == StatusSorted,
		Status:        result.Status,
		ToSort:        toSort,
		LookingGood:   result.LookingGood,
		Notes:         result.Notes,
		LastChecked:   now,
		ImageSize:     len(image),
		Latency:       latency,
		CurrentStreak: patterns.CurrentStreak,
		LongestStreak: patterns.LongestStreak,
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	log.Printf("spot check done spot=%q status=%s to_sort=%d looking_good=%d streak=%d",
		s.cfg.Name, state.Status, len(state.ToSort), len(state.LookingGood), state.CurrentStreak)
	s.publish(EventCheck)
}

// publishFailure downgrades the spot to not-sorted, surfaces the error and
// stamps last-checked. Everything else in the projection is left as it was.
func (s *Spot) publishFailure(now time.Time, msg string) {
	s.mu.Lock()
	s.state.Sorted = false
	s.state.LastError = msg
	s.state.LastChecked = now
	s.mu.Unlock()
	s.publish(EventCheckFailed)
}

// Reset is the user's "I fixed it": publish a sorted state and credit the
// streak without appending a check record.
func (s *Spot) Reset() {
	s.memory.RecordManualReset(s.id)
	patterns := s.memory.Patterns(s.id)

	s.mu.Lock()
	s.state.Sorted = true
	s.state.Status = StatusSorted
	s.state.ToSort = nil
	s.state.Notes = Notes{Main: "Reset by user."}
	s.state.LastError = ""
	s.state.CurrentStreak = patterns.CurrentStreak
	s.state.LongestStreak = patterns.LongestStreak
	s.mu.Unlock()

	log.Printf("spot reset spot=%q streak=%d best=%d", s.cfg.Name, patterns.CurrentStreak, patterns.LongestStreak)
	s.publish(EventReset)
}

// Snooze suppresses automatic checks until now+minutes. It does not touch
// the periodic timer and never blocks manually triggered checks.
func (s *Spot) Snooze(minutes int) {
	s.mu.Lock()
	s.snoozeUntil = s.now().Add(time.Duration(minutes) * time.Minute)
	s.mu.Unlock()
	log.Printf("spot snoozed spot=%q minutes=%d", s.cfg.Name, minutes)
	s.publish(EventSnooze)
}

func (s *Spot) Unsnooze() {
	s.mu.Lock()
	s.snoozeUntil = time.Time{}
	s.mu.Unlock()
	log.Printf("spot unsnoozed spot=%q", s.cfg.Name)
	s.publish(EventUnsnooze)
}

func (s *Spot) publish(kind string) {
	state := s.State()
	ev := Event{Kind: kind, SpotID: s.id, SpotName: s.cfg.Name, State: state}
	ev.Topic = SpotTopic(s.id)
	s.bus.Publish(ev)
	ev.Topic = TopicSystem
	s.bus.Publish(ev)
}

// StartScheduler arms the periodic auto-check timer: N runs/day means one
// firing every 24/N hours, rearmed at now+interval after every firing
// regardless of outcome. N=0 leaves the spot manual-only.
func (s *Spot) StartScheduler() {
	if s.cfg.RunsPerDay <= 0 {
		log.Printf("spot scheduler disabled spot=%q (manual only)", s.cfg.Name)
		return
	}

	interval := time.Duration(24/s.cfg.RunsPerDay) * time.Hour
	schedule := cron.Every(interval)
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	log.Printf("[scheduler] spot=%q interval=%s runs_per_day=%d", s.cfg.Name, interval, s.cfg.RunsPerDay)

	go func() {
		for {
			next := schedule.Next(s.now())
			s.mu.Lock()
			s.nextCheck = next
			s.mu.Unlock()

			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			s.Check(ReasonAuto)
		}
	}()
}

// WaitIdle blocks until no check is in flight. Shutdown only.
func (s *Spot) WaitIdle() {
	s.wg.Wait()
}

// StopScheduler cancels the periodic timer; safe to call when none is armed.
func (s *Spot) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
		s.nextCheck = time.Time{}
	}
}
