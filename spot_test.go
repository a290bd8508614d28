package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	result  *AnalysisResult
	err     error
	calls   int
	lastReq AnalyzeRequest
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, req AnalyzeRequest) (*AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

// gateAnalyzer blocks inside Analyze until released, so tests can hold a
// check in flight.
type gateAnalyzer struct {
	mu      sync.Mutex
	calls   int
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateAnalyzer() *gateAnalyzer {
	return &gateAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateAnalyzer) Analyze(_ context.Context, _ []byte, _ AnalyzeRequest) (*AnalysisResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.once.Do(func() { close(g.started) })
	<-g.release
	return &AnalysisResult{Status: StatusSorted}, nil
}

func (g *gateAnalyzer) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeSource struct {
	data []byte
	err  error
}

func (f *fakeSource) Capture() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newTestSpot(t *testing.T, analyzer Analyzer, source ImageSource) (*Spot, *MemoryManager, *Bus) {
	t.Helper()
	db := testDB(t)
	memory := NewMemoryManager(db)
	bus := NewBus()
	cfg := SpotConfig{
		Name:       "desk",
		Definition: "No dishes, papers in the tray.",
		Voice:      "supportive",
	}
	return NewSpot("spot-1", cfg, memory, analyzer, source, bus), memory, bus
}

func collectEvents(bus *Bus, topic string) *[]Event {
	events := &[]Event{}
	bus.Subscribe(topic, "test-collector", func(ev Event) {
		*events = append(*events, ev)
	})
	return events
}

func TestCheckSorted(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{
		Status:      StatusSorted,
		LookingGood: []string{"desk surface", "tray"},
		Notes:       Notes{Main: "All set."},
	}}
	spot, _, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	events := collectEvents(bus, TopicSystem)

	spot.Check(ReasonManual)

	state := spot.State()
	if !state.Sorted || state.Status != StatusSorted {
		t.Errorf("state = %+v, want sorted", state)
	}
	if len(state.ToSort) != 0 {
		t.Errorf("ToSort = %v, want empty", state.ToSort)
	}
	if len(state.LookingGood) != 2 {
		t.Errorf("LookingGood = %v", state.LookingGood)
	}
	if state.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1 after today's sorted check", state.CurrentStreak)
	}
	if state.LastChecked.IsZero() {
		t.Error("LastChecked not stamped")
	}
	if state.ImageSize == 0 {
		t.Error("ImageSize not recorded")
	}
	if len(*events) != 1 || (*events)[0].Kind != EventCheck {
		t.Fatalf("events = %+v, want one EventCheck", *events)
	}
}

func TestCheckPublishesBothTopics(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	system := collectEvents(bus, TopicSystem)
	perSpot := collectEvents(bus, SpotTopic("spot-1"))

	spot.Check(ReasonManual)

	if len(*system) != 1 {
		t.Errorf("system events = %d, want 1", len(*system))
	}
	if len(*perSpot) != 1 {
		t.Errorf("per-spot events = %d, want 1", len(*perSpot))
	}
}

func TestCheckRecurringCrossReference(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{
		Status: StatusNeedsAttention,
		ToSort: []AnalysisItem{{Item: "coffee mug", Location: "left side"}},
	}}
	spot, _, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	events := collectEvents(bus, TopicSystem)

	spot.Check(ReasonManual)
	spot.Check(ReasonManual)
	spot.Check(ReasonManual)

	if len(*events) != 3 {
		t.Fatalf("events = %d, want 3", len(*events))
	}
	// First two appearances are below the recurring threshold.
	for i := 0; i < 2; i++ {
		if (*events)[i].State.ToSort[0].Recurring {
			t.Errorf("check %d: item recurring too early", i+1)
		}
	}
	// The third check itself counts: the published item is already recurring.
	third := (*events)[2].State.ToSort[0]
	if !third.Recurring || third.RecurringCount != 3 {
		t.Errorf("third check item = %+v, want recurring with count 3", third)
	}
	if third.Item != "coffee mug" || third.Location != "left side" {
		t.Errorf("item fields = %+v", third)
	}
}

func TestCheckAnalyzerGetsContext(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})

	spot.Check(ReasonManual)
	if analyzer.lastReq.ContextSummary != "First check - no history yet." {
		t.Errorf("first context = %q", analyzer.lastReq.ContextSummary)
	}
	if analyzer.lastReq.SpotName != "desk" || analyzer.lastReq.Definition == "" {
		t.Errorf("request = %+v", analyzer.lastReq)
	}
	if !strings.Contains(analyzer.lastReq.VoicePrompt, "Celebrate small wins") {
		t.Errorf("voice prompt = %q, want supportive text", analyzer.lastReq.VoicePrompt)
	}

	spot.Check(ReasonManual)
	if !strings.Contains(analyzer.lastReq.ContextSummary, "Last check: sorted") {
		t.Errorf("second context = %q, want history of first check", analyzer.lastReq.ContextSummary)
	}
}

func TestCheckInFlightIsNoOp(t *testing.T) {
	analyzer := newGateAnalyzer()
	spot, _, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	events := collectEvents(bus, TopicSystem)

	done := make(chan struct{})
	go func() {
		spot.Check(ReasonManual)
		close(done)
	}()
	<-analyzer.started

	// Second trigger while the first is still inside the analyzer: no-op.
	spot.Check(ReasonService)
	if got := analyzer.callCount(); got != 1 {
		t.Errorf("analyzer calls = %d, want 1 while a check is in flight", got)
	}

	close(analyzer.release)
	<-done

	if got := analyzer.callCount(); got != 1 {
		t.Errorf("analyzer calls = %d after completion, want 1", got)
	}
	if len(*events) != 1 || (*events)[0].Kind != EventCheck {
		t.Fatalf("events = %+v, want exactly one EventCheck", *events)
	}

	// The gate lifts with the in-flight flag: the next trigger runs.
	spot.Check(ReasonManual)
	if got := analyzer.callCount(); got != 2 {
		t.Errorf("analyzer calls = %d, want 2 once the first check finished", got)
	}
}

func TestCheckCaptureFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, memory, bus := newTestSpot(t, analyzer, &fakeSource{err: &CaptureError{Source: "cam", Err: errors.New("offline")}})
	events := collectEvents(bus, TopicSystem)

	spot.Check(ReasonManual)

	state := spot.State()
	if state.Sorted {
		t.Error("failed check must downgrade to not-sorted")
	}
	if !strings.HasPrefix(state.LastError, "Camera error:") {
		t.Errorf("LastError = %q", state.LastError)
	}
	if state.LastChecked.IsZero() {
		t.Error("failed check must still stamp LastChecked")
	}
	if analyzer.calls != 0 {
		t.Error("analyzer must not run after capture failure")
	}
	if len(*events) != 1 || (*events)[0].Kind != EventCheckFailed {
		t.Fatalf("events = %+v, want one EventCheckFailed", *events)
	}
	// Failures never enter history.
	if got := memory.ContextSummary("spot-1"); got != "First check - no history yet." {
		t.Errorf("failure leaked into history: %q", got)
	}
}

func TestCheckAnalysisFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &AnalysisError{Kind: AnalysisQuotaExceeded, Status: 429}}
	spot, memory, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	events := collectEvents(bus, TopicSystem)

	spot.Check(ReasonManual)

	state := spot.State()
	if state.LastError != "analysis quota exceeded, try again later" {
		t.Errorf("LastError = %q", state.LastError)
	}
	if len(*events) != 1 || (*events)[0].Kind != EventCheckFailed {
		t.Fatalf("events = %+v", *events)
	}
	if got := memory.ContextSummary("spot-1"); got != "First check - no history yet." {
		t.Errorf("failure leaked into history: %q", got)
	}
}

func TestCheckFailurePreservesLastGoodItems(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{
		Status: StatusNeedsAttention,
		ToSort: []AnalysisItem{{Item: "papers"}},
	}}
	source := &fakeSource{data: testJPEG(t, 64, 48)}
	spot, _, _ := newTestSpot(t, analyzer, source)

	spot.Check(ReasonManual)
	source.err = errors.New("camera unplugged")
	spot.Check(ReasonManual)

	state := spot.State()
	if len(state.ToSort) != 1 {
		t.Errorf("ToSort = %v, want previous items preserved on failure", state.ToSort)
	}
	if state.LastError == "" {
		t.Error("LastError should be set")
	}
}

func TestSnoozeGatesAutoOnly(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})

	spot.Snooze(60)
	if !spot.IsSnoozed() {
		t.Fatal("spot should report snoozed")
	}

	spot.Check(ReasonAuto)
	if analyzer.calls != 0 {
		t.Error("auto check must be suppressed while snoozed")
	}

	spot.Check(ReasonManual)
	spot.Check(ReasonService)
	spot.Check(ReasonCheckAll)
	if analyzer.calls != 3 {
		t.Errorf("analyzer calls = %d, want 3 (snooze never blocks explicit checks)", analyzer.calls)
	}

	spot.Unsnooze()
	if spot.IsSnoozed() {
		t.Error("unsnooze should clear suppression")
	}
	spot.Check(ReasonAuto)
	if analyzer.calls != 4 {
		t.Errorf("analyzer calls = %d, want 4 after unsnooze", analyzer.calls)
	}
}

func TestSnoozeExpires(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})

	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	spot.now = func() time.Time { return clock }

	spot.Snooze(30)
	clock = clock.Add(31 * time.Minute)
	if spot.IsSnoozed() {
		t.Error("snooze should have expired")
	}
	spot.Check(ReasonAuto)
	if analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1 after expiry", analyzer.calls)
	}
}

func TestResetPublishesSortedAndCreditsStreak(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{
		Status: StatusNeedsAttention,
		ToSort: []AnalysisItem{{Item: "papers"}},
	}}
	spot, memory, bus := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	events := collectEvents(bus, TopicSystem)

	spot.Check(ReasonManual)
	spot.Reset()

	state := spot.State()
	if !state.Sorted || state.Status != StatusSorted {
		t.Errorf("state after reset = %+v, want sorted", state)
	}
	if len(state.ToSort) != 0 {
		t.Errorf("ToSort = %v, want cleared", state.ToSort)
	}
	if state.Notes.Main != "Reset by user." {
		t.Errorf("Notes.Main = %q", state.Notes.Main)
	}
	if state.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1 (reset credits exactly one)", state.CurrentStreak)
	}
	if memory.TotalResets("spot-1") != 1 {
		t.Errorf("TotalResets = %d, want 1", memory.TotalResets("spot-1"))
	}
	// Reset appends no record: history still holds just the one check.
	if !strings.Contains(memory.ContextSummary("spot-1"), "Total checks in last 30 days: 1") {
		t.Errorf("reset must not append a check record:\n%s", memory.ContextSummary("spot-1"))
	}

	last := (*events)[len(*events)-1]
	if last.Kind != EventReset {
		t.Errorf("last event = %s, want reset", last.Kind)
	}
}

func TestSummaryExcludesSnoozedFromAttention(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{
		Status: StatusNeedsAttention,
		ToSort: []AnalysisItem{{Item: "papers"}},
	}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})

	spot.Check(ReasonManual)
	if !spot.Summary().NeedsAttention {
		t.Fatal("unsorted spot should need attention")
	}

	spot.Snooze(60)
	summary := spot.Summary()
	if summary.NeedsAttention {
		t.Error("snoozed spot must not report attention need")
	}
	if summary.SnoozedUntil.IsZero() {
		t.Error("summary should carry the snooze deadline")
	}
}

func TestIsOverdue(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})

	if spot.IsOverdue() {
		t.Error("never-checked spot must not be overdue")
	}

	clock := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	spot.now = func() time.Time { return clock }
	spot.Check(ReasonManual)

	clock = clock.Add(47 * time.Hour)
	if spot.IsOverdue() {
		t.Error("47h is inside the threshold")
	}
	clock = clock.Add(2 * time.Hour)
	if !spot.IsOverdue() {
		t.Error("49h should be overdue")
	}
}

func TestSchedulerArmsAndStops(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	spot.cfg.RunsPerDay = 4

	spot.StartScheduler()
	deadline := time.Now().Add(time.Second)
	for spot.NextCheck().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	next := spot.NextCheck()
	if next.IsZero() {
		t.Fatal("scheduler never armed")
	}
	until := time.Until(next)
	if until < 5*time.Hour || until > 7*time.Hour {
		t.Errorf("next check in %s, want about 6h for 4 runs/day", until)
	}

	spot.StopScheduler()
	if !spot.NextCheck().IsZero() {
		t.Error("stop should clear the armed timer")
	}
}

func TestSchedulerDisabledAtZeroRuns(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &AnalysisResult{Status: StatusSorted}}
	spot, _, _ := newTestSpot(t, analyzer, &fakeSource{data: testJPEG(t, 64, 48)})
	spot.cfg.RunsPerDay = 0

	spot.StartScheduler()
	if !spot.NextCheck().IsZero() {
		t.Error("runs_per_day=0 must not arm a timer")
	}
	spot.StopScheduler() // no-op, must not panic
}
