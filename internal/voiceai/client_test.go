package voiceai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStartCall_SendsAuthAndDefaults(t *testing.T) {
	var got StartCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/calls" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "test-key" {
			t.Errorf("missing api key header, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(StartCallResult{CallID: "ext-1"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", WebhookURL: "https://app.example.com/calls/webhook"})
	res, err := c.StartCall(context.Background(), StartCallRequest{
		PhoneNumber: "+15551234567",
		Task:        "ask about the appointment",
		LocalCallID: "local-1",
	})
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if res.CallID != "ext-1" {
		t.Fatalf("unexpected call id %q", res.CallID)
	}

	if got.Voice != "June" || got.Model != "base" || got.Language != "en" || got.MaxDuration != 12 || got.VoicemailAction != "hangup" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.WebhookURL != "https://app.example.com/calls/webhook" {
		t.Fatalf("webhook url not injected: %q", got.WebhookURL)
	}
	if got.LocalCallID != "local-1" {
		t.Fatalf("local call id not forwarded: %q", got.LocalCallID)
	}
}

func TestStartCall_MissingCallIDIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.StartCall(context.Background(), StartCallRequest{PhoneNumber: "+1", Task: "t"}); err == nil {
		t.Fatalf("expected error for response without call_id")
	}
}

func TestStartCall_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"insufficient balance"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.StartCall(context.Background(), StartCallRequest{PhoneNumber: "+1", Task: "t"}); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestListCalls_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"calls":[{"call_id":"a","status":"completed"},{"call_id":"b","status":"no-answer"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	out, err := c.ListCalls(context.Background())
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(out) != 2 || out[0].CallID != "a" || out[1].CallID != "b" {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
}

func TestGetCall_PathAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls/ext-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"call_id":"ext-9","status":"completed","call_length":2.5,"pathway_id":"intake"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	pc, err := c.GetCall(context.Background(), "ext-9")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if pc.CallID != "ext-9" {
		t.Fatalf("unexpected call: %+v", pc)
	}
	if pc.DurationSeconds() != 150 {
		t.Fatalf("expected 150s from 2.5 minutes, got %d", pc.DurationSeconds())
	}
	if pc.PathwayTag() != "intake" {
		t.Fatalf("expected pathway_id preferred, got %q", pc.PathwayTag())
	}
}

func TestProviderCall_DurationAliasPreference(t *testing.T) {
	p := ProviderCall{Duration: 40, CallLength: 2}
	if p.DurationSeconds() != 40 {
		t.Fatalf("whole-second field must win, got %d", p.DurationSeconds())
	}
	if (ProviderCall{}).DurationSeconds() != 0 {
		t.Fatalf("zero record must report zero duration")
	}
}

func TestProviderCall_TranscriptDataAliases(t *testing.T) {
	p := ProviderCall{Transcripts: []byte(`[{"user":"user","text":"hi"}]`)}
	if data, ok := p.TranscriptData(); !ok || data != `[{"user":"user","text":"hi"}]` {
		t.Fatalf("unexpected transcript data: %q %v", data, ok)
	}
	p = ProviderCall{Responses: []byte(`"raw text"`)}
	if data, ok := p.TranscriptData(); !ok || data != `"raw text"` {
		t.Fatalf("unexpected responses data: %q %v", data, ok)
	}
	p = ProviderCall{Transcripts: []byte(`null`)}
	if _, ok := p.TranscriptData(); ok {
		t.Fatalf("null payload must report no data")
	}
}
