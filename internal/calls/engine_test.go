package calls

import (
	"context"
	"errors"
	"sync"
	"testing"

	"callsight/internal/audit"
	"callsight/internal/voiceai"
)

type fakeProvider struct {
	startResult voiceai.StartCallResult
	startErr    error
	startReqs   []voiceai.StartCallRequest

	getResult voiceai.ProviderCall
	getErr    error

	listResult []voiceai.ProviderCall
	listErr    error
}

func (f *fakeProvider) StartCall(ctx context.Context, req voiceai.StartCallRequest) (voiceai.StartCallResult, error) {
	f.startReqs = append(f.startReqs, req)
	return f.startResult, f.startErr
}

func (f *fakeProvider) GetCall(ctx context.Context, callID string) (voiceai.ProviderCall, error) {
	return f.getResult, f.getErr
}

func (f *fakeProvider) ListCalls(ctx context.Context) ([]voiceai.ProviderCall, error) {
	return f.listResult, f.listErr
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []Call
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, c)
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

func newTestEngine(store Store, provider voiceai.API, reports ReportDispatcher) *Engine {
	return NewEngine(EngineParams{
		Store:    store,
		Provider: provider,
		Reports:  reports,
		Audit:    audit.NewService(audit.NewMemoryRepo()),
	})
}

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }

/* ===================== CREATE ===================== */

func TestCreate_AttachesProviderCallID(t *testing.T) {
	store := NewMemoryStore()
	provider := &fakeProvider{startResult: voiceai.StartCallResult{CallID: "ext-1"}}
	e := newTestEngine(store, provider, nil)

	c, err := e.Create(context.Background(), CreateCallRequest{PhoneNumber: "+15551234567", Script: "ask about the case"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ProviderCallID != "ext-1" {
		t.Fatalf("expected provider call id attached, got %q", c.ProviderCallID)
	}
	if c.Status != CallStatusInProgress {
		t.Fatalf("expected in_progress, got %q", c.Status)
	}
	if c.FromNumber != SystemFromNumber {
		t.Fatalf("expected from-number default, got %q", c.FromNumber)
	}
	if len(provider.startReqs) != 1 || provider.startReqs[0].LocalCallID != c.ID {
		t.Fatalf("expected local call id passed to provider")
	}
}

func TestCreate_RejectsMissingFields(t *testing.T) {
	e := newTestEngine(NewMemoryStore(), &fakeProvider{}, nil)

	if _, err := e.Create(context.Background(), CreateCallRequest{PhoneNumber: "+15551234567"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := e.Create(context.Background(), CreateCallRequest{Script: "x"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCreate_ProviderFailureLeavesOrphanRecord(t *testing.T) {
	store := NewMemoryStore()
	provider := &fakeProvider{startErr: errors.New("upstream 500")}
	e := newTestEngine(store, provider, nil)

	_, err := e.Create(context.Background(), CreateCallRequest{PhoneNumber: "+15551234567", Script: "script"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	// The record stays, without a provider call id (no rollback).
	all, _ := store.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected 1 orphan record, got %d", len(all))
	}
	if all[0].ProviderCallID != "" {
		t.Fatalf("expected empty provider call id, got %q", all[0].ProviderCallID)
	}
}

/* ===================== WEBHOOK PATH ===================== */

func TestApplyWebhook_PartialUpdateKeepsStoredFields(t *testing.T) {
	store := NewMemoryStore()
	seed := Call{ID: "c1", ProviderCallID: "ext-1", PhoneNumber: "+15551234567", Status: CallStatusInProgress, RecordingURL: "R1", Issues: "noise"}
	if err := store.Insert(context.Background(), &seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	e := newTestEngine(store, &fakeProvider{}, nil)
	got, err := e.ApplyWebhook(context.Background(), WebhookPayload{
		CallID:   "ext-1",
		Status:   "in-progress",
		Duration: intptr(42),
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got.RecordingURL != "R1" {
		t.Fatalf("absent field must not clobber stored value, got %q", got.RecordingURL)
	}
	if got.Issues != "noise" {
		t.Fatalf("absent field must not clobber stored value, got %q", got.Issues)
	}
	if got.DurationSeconds != 42 {
		t.Fatalf("expected duration applied, got %d", got.DurationSeconds)
	}
}

func TestApplyWebhook_UnknownCallSynthesizedWithSentinels(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(store, &fakeProvider{}, nil)

	got, err := e.ApplyWebhook(context.Background(), WebhookPayload{CallID: "ext-ghost", Status: "in-progress"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got.PhoneNumber != UnknownPhoneNumber || got.FromNumber != SystemFromNumber || got.Script != ImportedScript {
		t.Fatalf("expected sentinel placeholders, got %+v", got)
	}

	stored, err := store.GetByProviderCallID(context.Background(), "ext-ghost")
	if err != nil {
		t.Fatalf("expected record recovered: %v", err)
	}
	if stored.ID != got.ID {
		t.Fatalf("expected exactly one record for the unknown call")
	}
}

func TestApplyWebhook_StoresTranscriptVariants(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(store, &fakeProvider{}, nil)

	// structured responses array stored verbatim
	got, err := e.ApplyWebhook(context.Background(), WebhookPayload{
		CallID:    "ext-1",
		Responses: []byte(`[{"question":"Q","answer":"A"}]`),
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got.Transcript != `[{"question":"Q","answer":"A"}]` {
		t.Fatalf("unexpected stored transcript: %q", got.Transcript)
	}

	// concatenated transcript stored as a JSON-encoded string
	got, err = e.ApplyWebhook(context.Background(), WebhookPayload{
		CallID:                 "ext-1",
		ConcatenatedTranscript: strptr("agent: hello"),
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got.Transcript != `"agent: hello"` {
		t.Fatalf("unexpected stored transcript: %q", got.Transcript)
	}
}

func TestApplyWebhook_CompletionDispatchesPerDelivery(t *testing.T) {
	store := NewMemoryStore()
	reports := &fakeDispatcher{}
	e := newTestEngine(store, &fakeProvider{}, reports)

	payload := WebhookPayload{CallID: "ext-1", Status: "completed"}

	if _, err := e.ApplyWebhook(context.Background(), payload); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	e.WaitReports()
	if reports.count() != 1 {
		t.Fatalf("expected 1 dispatch after first completion, got %d", reports.count())
	}

	// Re-delivery of the same completed payload dispatches again.
	if _, err := e.ApplyWebhook(context.Background(), payload); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	e.WaitReports()
	if reports.count() != 2 {
		t.Fatalf("expected 2 dispatches after re-delivery, got %d", reports.count())
	}
}

func TestApplyWebhook_NonCompletionNeverDispatches(t *testing.T) {
	reports := &fakeDispatcher{}
	e := newTestEngine(NewMemoryStore(), &fakeProvider{}, reports)

	for _, status := range []string{"", "queued", "no-answer"} {
		if _, err := e.ApplyWebhook(context.Background(), WebhookPayload{CallID: "ext-1", Status: status}); err != nil {
			t.Fatalf("webhook(%q): %v", status, err)
		}
	}
	e.WaitReports()
	if reports.count() != 0 {
		t.Fatalf("expected no dispatches, got %d", reports.count())
	}
}

func TestApplyWebhook_DispatchFailureDoesNotFailMerge(t *testing.T) {
	store := NewMemoryStore()
	reports := &fakeDispatcher{err: errors.New("smtp down")}
	e := newTestEngine(store, &fakeProvider{}, reports)

	got, err := e.ApplyWebhook(context.Background(), WebhookPayload{CallID: "ext-1", Status: "completed"})
	if err != nil {
		t.Fatalf("merge must not fail on dispatch error: %v", err)
	}
	e.WaitReports()
	if got.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
}

func TestApplyWebhook_MissingCallIDRejected(t *testing.T) {
	e := newTestEngine(NewMemoryStore(), &fakeProvider{}, nil)
	if _, err := e.ApplyWebhook(context.Background(), WebhookPayload{Status: "completed"}); !errors.Is(err, ErrMissingCallID) {
		t.Fatalf("expected ErrMissingCallID, got %v", err)
	}
}

/* ===================== SYNC PATH ===================== */

func TestSync_CreatesAndUpdatesWithoutReports(t *testing.T) {
	store := NewMemoryStore()
	seed := Call{ID: "c1", ProviderCallID: "ext-1", PhoneNumber: "+15551111111", Status: CallStatusInProgress}
	if err := store.Insert(context.Background(), &seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &fakeProvider{listResult: []voiceai.ProviderCall{
		{CallID: "ext-1", Status: "completed", Duration: 95, RecordingURL: "https://rec/1"},
		{CallID: "ext-2", Status: "completed", ToNumber: "+15552222222", FromNumber: "+15550000000", Summary: "left voicemail"},
	}}
	reports := &fakeDispatcher{}
	e := newTestEngine(store, provider, reports)

	res, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Synced != 2 || res.Created != 1 || res.Updated != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	// Sync never triggers report dispatch, even for newly surfaced completions.
	e.WaitReports()
	if reports.count() != 0 {
		t.Fatalf("sync must not dispatch reports, got %d", reports.count())
	}

	updated, _ := store.GetByProviderCallID(context.Background(), "ext-1")
	if updated.Status != CallStatusCompleted || updated.DurationSeconds != 95 || updated.RecordingURL != "https://rec/1" {
		t.Fatalf("unexpected merged record: %+v", updated)
	}
	created, err := store.GetByProviderCallID(context.Background(), "ext-2")
	if err != nil {
		t.Fatalf("expected created record: %v", err)
	}
	if created.Status != CallStatusCompleted || created.PhoneNumber != "+15552222222" || created.Summary != "left voicemail" {
		t.Fatalf("unexpected created record: %+v", created)
	}
}

func TestSync_IdempotentOnUnchangedSnapshot(t *testing.T) {
	provider := &fakeProvider{listResult: []voiceai.ProviderCall{
		{CallID: "ext-1", Status: "completed", Duration: 30, ToNumber: "+15551111111", Summary: "done"},
		{CallID: "ext-2", Status: "no-answer", ToNumber: "+15552222222"},
	}}
	e := newTestEngine(NewMemoryStore(), provider, nil)

	first, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("expected 2 creates, got %+v", first)
	}

	second, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Synced != 2 || second.Created != 0 || second.Updated != 0 {
		t.Fatalf("expected no-op second pass, got %+v", second)
	}
}

func TestSync_DurationAliasConvertedToSeconds(t *testing.T) {
	provider := &fakeProvider{listResult: []voiceai.ProviderCall{
		{CallID: "ext-1", Status: "completed", CallLength: 1.5},
	}}
	store := NewMemoryStore()
	e := newTestEngine(store, provider, nil)

	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	c, _ := store.GetByProviderCallID(context.Background(), "ext-1")
	if c.DurationSeconds != 90 {
		t.Fatalf("expected 90s from 1.5 minute call_length, got %d", c.DurationSeconds)
	}
}

func TestSync_PerItemFailureSkipsAndContinues(t *testing.T) {
	provider := &fakeProvider{listResult: []voiceai.ProviderCall{
		{CallID: "", Status: "completed"}, // malformed provider record
		{CallID: "ext-2", Status: "no-answer", ToNumber: "+15552222222"},
	}}
	e := newTestEngine(NewMemoryStore(), provider, nil)

	res, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Synced != 1 || res.Created != 1 {
		t.Fatalf("expected malformed record skipped, got %+v", res)
	}
}

func TestSync_SnapshotFetchFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{listErr: errors.New("upstream 503")}
	e := newTestEngine(NewMemoryStore(), provider, nil)

	if _, err := e.Sync(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

/* ===================== READS & REPORT GATING ===================== */

type fakeRenderer struct{ rendered []Call }

func (f *fakeRenderer) Render(c Call) ([]byte, error) {
	f.rendered = append(f.rendered, c)
	return []byte("%PDF-fake"), nil
}

func TestReport_GatedOnCompletedStatus(t *testing.T) {
	store := NewMemoryStore()
	renderer := &fakeRenderer{}
	e := NewEngine(EngineParams{Store: store, Provider: &fakeProvider{}, Renderer: renderer})

	for i, status := range []CallStatus{CallStatusInProgress, CallStatusNotAnswered} {
		c := Call{ID: string(rune('a' + i)), Status: status}
		if err := store.Insert(context.Background(), &c); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := e.Report(context.Background(), c.ID); !errors.Is(err, ErrNotCompleted) {
			t.Fatalf("expected ErrNotCompleted for %q, got %v", status, err)
		}
	}

	done := Call{ID: "done", Status: CallStatusCompleted, Transcript: `"hi"`}
	if err := store.Insert(context.Background(), &done); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pdf, err := e.Report(context.Background(), "done")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(pdf) == 0 {
		t.Fatalf("expected report bytes")
	}
	if len(renderer.rendered) != 1 || renderer.rendered[0].ID != "done" {
		t.Fatalf("expected renderer invoked with the stored call")
	}
}

func TestReport_UnknownCall(t *testing.T) {
	e := NewEngine(EngineParams{Store: NewMemoryStore(), Provider: &fakeProvider{}, Renderer: &fakeRenderer{}})
	if _, err := e.Report(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetails_CombinesLocalAndProvider(t *testing.T) {
	store := NewMemoryStore()
	seed := Call{ID: "c1", ProviderCallID: "ext-1", Transcript: `[{"user":"user","text":"hello"}]`}
	if err := store.Insert(context.Background(), &seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	provider := &fakeProvider{getResult: voiceai.ProviderCall{CallID: "ext-1", Status: "completed"}}
	e := newTestEngine(store, provider, nil)

	d, err := e.Details(context.Background(), "c1")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Provider.CallID != "ext-1" {
		t.Fatalf("expected provider view, got %+v", d.Provider)
	}
	if len(d.Turns) != 1 || d.Turns[0].Text != "hello" {
		t.Fatalf("expected normalized turns, got %+v", d.Turns)
	}
}

func TestDetails_NoProviderCallID(t *testing.T) {
	store := NewMemoryStore()
	seed := Call{ID: "c1"}
	if err := store.Insert(context.Background(), &seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := newTestEngine(store, &fakeProvider{}, nil)
	if _, err := e.Details(context.Background(), "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearAll_ReturnsDeletedCount(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		c := Call{ID: id}
		if err := store.Insert(context.Background(), &c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	e := newTestEngine(store, &fakeProvider{}, nil)
	n, err := e.ClearAll(context.Background())
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
}
