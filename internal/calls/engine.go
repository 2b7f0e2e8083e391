package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"callsight/internal/audit"
	"callsight/internal/voiceai"
	"callsight/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
)

var (
	ErrInvalidArgument     = errors.New("calls: invalid argument")
	ErrNotCompleted        = errors.New("calls: report is only available for completed calls")
	ErrSyncInProgress      = errors.New("calls: sync already running")
	ErrProviderUnavailable = errors.New("calls: provider request failed")
)

// ReportDispatcher renders and delivers the report for a completed call.
type ReportDispatcher interface {
	Dispatch(ctx context.Context, c Call) error
}

// ReportRenderer produces report bytes for the on-demand download endpoint.
type ReportRenderer interface {
	Render(c Call) ([]byte, error)
}

const (
	syncLockKey           = "callsight:sync"
	syncLockTTL           = 2 * time.Minute
	reportDispatchTimeout = 90 * time.Second
)

// Engine owns the call state machine and the two convergent update paths.
//
// Both feeds race to update the record keyed by the provider call id; merges
// are serialized per key so a concurrent webhook delivery and sync pass
// cannot interleave their read-modify-write cycles. Bulk sync additionally
// holds a redis lock so only one replica runs a pass at a time.
type Engine struct {
	store    Store
	provider voiceai.API
	reports  ReportDispatcher
	renderer ReportRenderer
	auditor  *audit.Service
	locker   *redislock.Client
	log      *slog.Logger

	keys keyedMutex

	// reportWG tracks in-flight background dispatches so shutdown (and
	// tests) can wait for them.
	reportWG sync.WaitGroup
}

type EngineParams struct {
	Store    Store
	Provider voiceai.API
	Reports  ReportDispatcher
	Renderer ReportRenderer
	Audit    *audit.Service

	// SyncLocker is optional; without it sync runs are only serialized
	// within this process.
	SyncLocker *redislock.Client

	Logger *slog.Logger
}

func NewEngine(p EngineParams) *Engine {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    p.Store,
		provider: p.Provider,
		reports:  p.Reports,
		renderer: p.Renderer,
		auditor:  p.Audit,
		locker:   p.SyncLocker,
		log:      log,
	}
}

/* ===================== CREATE ===================== */

type CreateCallRequest struct {
	PhoneNumber string
	Script      string
	FromNumber  string

	Voice           string
	Model           string
	Language        string
	MaxDuration     int
	VoicemailAction string
	Record          bool
	WaitForGreeting bool
	AnsweredByCheck bool
}

// Create inserts a local record and asks the provider to place the call.
//
// If the provider rejects the start request the record is kept without a
// provider call id (no rollback); a later bulk sync cannot adopt it, but the
// attempt stays visible to staff.
func (e *Engine) Create(ctx context.Context, req CreateCallRequest) (Call, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	script := strings.TrimSpace(req.Script)
	if phone == "" || script == "" {
		return Call{}, fmt.Errorf("%w: phone number and script are required", ErrInvalidArgument)
	}

	c := Call{
		ID:           uuid.NewString(),
		PhoneNumber:  phone,
		FromNumber:   valueOr(req.FromNumber, SystemFromNumber),
		Script:       script,
		Status:       CallStatusInProgress,
		Pathway:      valueOr(req.Model, DefaultPathway),
		ReviewStatus: ReviewPending,
	}
	if err := e.store.Insert(ctx, &c); err != nil {
		return Call{}, err
	}

	res, err := e.provider.StartCall(ctx, voiceai.StartCallRequest{
		PhoneNumber:     phone,
		Task:            script,
		Voice:           req.Voice,
		Model:           req.Model,
		Language:        req.Language,
		MaxDuration:     req.MaxDuration,
		VoicemailAction: req.VoicemailAction,
		Record:          req.Record,
		WaitForGreeting: req.WaitForGreeting,
		AnsweredByCheck: req.AnsweredByCheck,
		LocalCallID:     c.ID,
	})
	if err != nil {
		e.log.Error("provider start call failed", "call_id", c.ID, "err", err)
		utils.ProviderErrors.WithLabelValues("start_call").Inc()
		e.appendAudit(ctx, audit.Event{Type: audit.EventTypeCallCreated, CallID: c.ID, Outcome: "failed", Message: "provider rejected start request"})
		return Call{}, ErrProviderUnavailable
	}

	c.ProviderCallID = res.CallID
	if err := e.store.Update(ctx, &c); err != nil {
		return Call{}, err
	}

	e.log.Info("call started", "call_id", c.ID, "provider_call_id", c.ProviderCallID)
	e.appendAudit(ctx, audit.Event{Type: audit.EventTypeCallCreated, CallID: c.ID, ProviderCallID: c.ProviderCallID, Outcome: "created"})
	return c, nil
}

/* ===================== READS ===================== */

func (e *Engine) Get(ctx context.Context, id string) (Call, error) {
	return e.store.GetByID(ctx, id)
}

// List returns all calls, newest first.
func (e *Engine) List(ctx context.Context) ([]Call, error) {
	return e.store.List(ctx)
}

// CallDetails combines the stored record with the live provider view.
type CallDetails struct {
	Call     Call                 `json:"call"`
	Provider voiceai.ProviderCall `json:"provider"`
	Turns    []Turn               `json:"turns"`
}

func (e *Engine) Details(ctx context.Context, id string) (CallDetails, error) {
	c, err := e.store.GetByID(ctx, id)
	if err != nil {
		return CallDetails{}, err
	}
	if c.ProviderCallID == "" {
		return CallDetails{}, fmt.Errorf("%w: call has no provider call id", ErrNotFound)
	}

	pc, err := e.provider.GetCall(ctx, c.ProviderCallID)
	if err != nil {
		e.log.Error("provider fetch failed", "call_id", c.ID, "provider_call_id", c.ProviderCallID, "err", err)
		utils.ProviderErrors.WithLabelValues("get_call").Inc()
		return CallDetails{}, ErrProviderUnavailable
	}

	return CallDetails{Call: c, Provider: pc, Turns: ParseTranscript(c.Transcript)}, nil
}

// Report renders the PDF for a completed call on demand. Calls in any other
// status are rejected.
func (e *Engine) Report(ctx context.Context, id string) ([]byte, error) {
	c, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != CallStatusCompleted {
		return nil, ErrNotCompleted
	}
	return e.renderer.Render(c)
}

func (e *Engine) ClearAll(ctx context.Context) (int64, error) {
	return e.store.DeleteAll(ctx)
}

/* ===================== WEBHOOK PATH ===================== */

// ApplyWebhook merges a provider push notification into the local record.
//
// Fields absent from the payload leave stored values untouched; status is
// always overwritten with the mapped value. A payload for an unknown
// provider call id synthesizes a new record from the payload alone. Entering
// completed dispatches the report in the background; the merge result never
// depends on dispatch outcome.
func (e *Engine) ApplyWebhook(ctx context.Context, p WebhookPayload) (Call, error) {
	if err := p.Validate(); err != nil {
		return Call{}, err
	}

	unlock := e.keys.lock(p.CallID)
	defer unlock()

	status := MapProviderStatus(p.Status)

	c, err := e.store.GetByProviderCallID(ctx, p.CallID)
	outcome := "updated"
	switch {
	case err == nil:
		mergeWebhook(&c, p, status)
		if err := e.store.Update(ctx, &c); err != nil {
			utils.WebhookEvents.WithLabelValues("failed").Inc()
			return Call{}, err
		}
	case errors.Is(err, ErrNotFound):
		outcome = "created"
		c = synthesizeFromWebhook(p, status)
		if err := e.store.Insert(ctx, &c); err != nil {
			utils.WebhookEvents.WithLabelValues("failed").Inc()
			return Call{}, err
		}
	default:
		utils.WebhookEvents.WithLabelValues("failed").Inc()
		return Call{}, err
	}

	utils.WebhookEvents.WithLabelValues(outcome).Inc()
	e.log.Info("webhook merged", "call_id", c.ID, "provider_call_id", c.ProviderCallID, "status", c.Status, "outcome", outcome)
	e.appendAudit(ctx, audit.Event{
		Type: audit.EventTypeMerge, Source: string(SourceWebhook),
		CallID: c.ID, ProviderCallID: c.ProviderCallID,
		Outcome: outcome, Message: "status " + string(c.Status),
	})

	if c.Status == CallStatusCompleted {
		e.dispatchReport(c)
	}
	return c, nil
}

func mergeWebhook(c *Call, p WebhookPayload, status CallStatus) {
	// Status is always applied, even when unchanged. A completed record may
	// legitimately move back to in_progress on a later corrective signal.
	c.Status = status

	if data, ok := p.TranscriptData(); ok {
		c.Transcript = data
	}
	if p.Duration != nil && *p.Duration > 0 {
		c.DurationSeconds = *p.Duration
	}
	if p.RecordingURL != nil && *p.RecordingURL != "" {
		c.RecordingURL = *p.RecordingURL
	}
	if p.Issues != nil && *p.Issues != "" {
		c.Issues = *p.Issues
	}
	if p.TransferredTo != nil && *p.TransferredTo != "" {
		c.TransferredTo = *p.TransferredTo
	}
	if p.ToNumber != nil && *p.ToNumber != "" {
		c.PhoneNumber = *p.ToNumber
	}
	if p.FromNumber != nil && *p.FromNumber != "" {
		c.FromNumber = *p.FromNumber
	}
	if p.Summary != nil && *p.Summary != "" {
		c.Summary = *p.Summary
	}
}

// synthesizeFromWebhook recovers a call this system never initiated.
func synthesizeFromWebhook(p WebhookPayload, status CallStatus) Call {
	c := Call{
		ID:             uuid.NewString(),
		ProviderCallID: p.CallID,
		PhoneNumber:    UnknownPhoneNumber,
		FromNumber:     SystemFromNumber,
		Script:         ImportedScript,
		Status:         status,
		Pathway:        DefaultPathway,
		ReviewStatus:   ReviewPending,
	}
	mergeWebhook(&c, p, status)
	return c
}

/* ===================== SYNC PATH ===================== */

type SyncResult struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Sync pulls the complete provider snapshot and reconciles it call by call.
//
// A failure fetching the snapshot aborts the run; a failure merging one call
// is logged, counted as neither created nor updated, and the batch
// continues. Sync never dispatches reports, even when it surfaces a
// completed call for the first time; staff re-send via the download
// endpoint instead.
func (e *Engine) Sync(ctx context.Context) (SyncResult, error) {
	if e.locker != nil {
		lock, err := e.locker.Obtain(ctx, syncLockKey, syncLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return SyncResult{}, ErrSyncInProgress
		}
		if err != nil {
			return SyncResult{}, fmt.Errorf("calls: sync lock: %w", err)
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	snapshot, err := e.provider.ListCalls(ctx)
	if err != nil {
		e.log.Error("provider list calls failed", "err", err)
		utils.ProviderErrors.WithLabelValues("list_calls").Inc()
		return SyncResult{}, ErrProviderUnavailable
	}

	var res SyncResult
	for _, pc := range snapshot {
		outcome, err := e.syncOne(ctx, pc)
		if err != nil {
			e.log.Error("sync merge failed", "provider_call_id", pc.CallID, "err", err)
			utils.SyncMerges.WithLabelValues("failed").Inc()
			continue
		}
		res.Synced++
		utils.SyncMerges.WithLabelValues(outcome).Inc()
		switch outcome {
		case "created":
			res.Created++
		case "updated":
			res.Updated++
		}
	}

	e.log.Info("sync completed", "synced", res.Synced, "created", res.Created, "updated", res.Updated)
	meta, _ := json.Marshal(res)
	e.appendAudit(ctx, audit.Event{Type: audit.EventTypeSyncRun, Outcome: "completed", Metadata: string(meta)})
	return res, nil
}

func (e *Engine) syncOne(ctx context.Context, pc voiceai.ProviderCall) (string, error) {
	if pc.CallID == "" {
		return "", fmt.Errorf("provider record missing call_id")
	}

	unlock := e.keys.lock(pc.CallID)
	defer unlock()

	c, err := e.store.GetByProviderCallID(ctx, pc.CallID)
	if errors.Is(err, ErrNotFound) {
		nc := synthesizeFromProvider(pc)
		if err := e.store.Insert(ctx, &nc); err != nil {
			return "", err
		}
		e.appendAudit(ctx, audit.Event{
			Type: audit.EventTypeMerge, Source: string(SourceSync),
			CallID: nc.ID, ProviderCallID: pc.CallID, Outcome: "created",
			Message: reportSkippedNote(nc.Status),
		})
		return "created", nil
	}
	if err != nil {
		return "", err
	}

	if !mergeSyncDiff(&c, pc) {
		return "unchanged", nil
	}
	if err := e.store.Update(ctx, &c); err != nil {
		return "", err
	}
	e.appendAudit(ctx, audit.Event{
		Type: audit.EventTypeMerge, Source: string(SourceSync),
		CallID: c.ID, ProviderCallID: pc.CallID, Outcome: "updated",
		Message: reportSkippedNote(c.Status),
	})
	return "updated", nil
}

// mergeSyncDiff applies only the provider fields that differ from the stored
// value and reports whether anything changed.
func mergeSyncDiff(c *Call, pc voiceai.ProviderCall) bool {
	changed := false

	if st := MapProviderStatus(pc.Status); st != c.Status {
		c.Status = st
		changed = true
	}
	if d := pc.DurationSeconds(); d > 0 && d != c.DurationSeconds {
		c.DurationSeconds = d
		changed = true
	}
	if pc.RecordingURL != "" && pc.RecordingURL != c.RecordingURL {
		c.RecordingURL = pc.RecordingURL
		changed = true
	}
	if data, ok := pc.TranscriptData(); ok && data != c.Transcript {
		c.Transcript = data
		changed = true
	}
	if pc.ToNumber != "" && pc.ToNumber != c.PhoneNumber {
		c.PhoneNumber = pc.ToNumber
		changed = true
	}
	if pc.FromNumber != "" && pc.FromNumber != c.FromNumber {
		c.FromNumber = pc.FromNumber
		changed = true
	}
	if pc.Summary != "" && pc.Summary != c.Summary {
		c.Summary = pc.Summary
		changed = true
	}
	return changed
}

// synthesizeFromProvider imports a call straight from the provider snapshot.
func synthesizeFromProvider(pc voiceai.ProviderCall) Call {
	c := Call{
		ID:             uuid.NewString(),
		ProviderCallID: pc.CallID,
		PhoneNumber:    valueOr(pc.ToNumber, UnknownPhoneNumber),
		FromNumber:     valueOr(pc.FromNumber, SystemFromNumber),
		Script:         valueOr(pc.Script, ImportedScript),
		Status:         MapProviderStatus(pc.Status),
		Summary:        pc.Summary,
		RecordingURL:   pc.RecordingURL,
		Pathway:        valueOr(pc.PathwayTag(), DefaultPathway),
		ReviewStatus:   ReviewPending,
	}
	c.DurationSeconds = pc.DurationSeconds()
	if data, ok := pc.TranscriptData(); ok {
		c.Transcript = data
	}
	return c
}

func reportSkippedNote(s CallStatus) string {
	if s == CallStatusCompleted {
		return "report_skipped=true"
	}
	return ""
}

/* ===================== REPORT TRIGGER ===================== */

func (e *Engine) dispatchReport(c Call) {
	if e.reports == nil {
		return
	}
	e.reportWG.Add(1)
	go func() {
		defer e.reportWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reportDispatchTimeout)
		defer cancel()

		if err := e.reports.Dispatch(ctx, c); err != nil {
			e.log.Error("report dispatch failed", "call_id", c.ID, "err", err)
			utils.ReportDispatchFailures.Inc()
			e.appendAudit(ctx, audit.Event{Type: audit.EventTypeReportDispatch, CallID: c.ID, Outcome: "failed", Message: err.Error()})
			return
		}
		e.log.Info("report dispatched", "call_id", c.ID)
		utils.ReportsDispatched.Inc()
		e.appendAudit(ctx, audit.Event{Type: audit.EventTypeReportDispatch, CallID: c.ID, Outcome: "dispatched"})
	}()
}

// WaitReports blocks until in-flight report dispatches finish. Used on
// shutdown and in tests.
func (e *Engine) WaitReports() {
	e.reportWG.Wait()
}

func (e *Engine) appendAudit(ctx context.Context, ev audit.Event) {
	if err := e.auditor.Append(ctx, ev); err != nil {
		e.log.Warn("audit append failed", "type", ev.Type, "err", err)
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

/* ===================== PER-KEY LOCKING ===================== */

// keyedMutex serializes merges per provider call id. Entries are retained
// for the process lifetime; the key space is bounded by call volume.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
