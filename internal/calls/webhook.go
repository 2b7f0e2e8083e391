package calls

import (
	"encoding/json"
	"errors"
	"strings"
)

// WebhookPayload is the provider push notification body.
//
// Optional fields use pointers so a merge can tell "absent" from "zero":
// fields absent from the payload must leave the stored value untouched.
// AnsweredBy and CallEndedBy are part of the provider contract and are
// accepted but not persisted.
type WebhookPayload struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`

	// Responses carries the transcript data and may be a JSON array of
	// turns or a single JSON string; it is stored verbatim.
	Responses json.RawMessage `json:"responses,omitempty"`

	// ConcatenatedTranscript is an alternative transcript representation
	// sent by some provider versions.
	ConcatenatedTranscript *string `json:"concatenated_transcript,omitempty"`

	Duration      *int    `json:"duration,omitempty"`
	RecordingURL  *string `json:"recording_url,omitempty"`
	Issues        *string `json:"issues,omitempty"`
	TransferredTo *string `json:"transferred_to,omitempty"`
	FromNumber    *string `json:"from_number,omitempty"`
	ToNumber      *string `json:"to_number,omitempty"`
	Summary       *string `json:"summary,omitempty"`

	AnsweredBy  *string `json:"answered_by,omitempty"`
	CallEndedBy *string `json:"call_ended_by,omitempty"`
}

var ErrMissingCallID = errors.New("calls: webhook payload missing call_id")

func (p WebhookPayload) Validate() error {
	if strings.TrimSpace(p.CallID) == "" {
		return ErrMissingCallID
	}
	return nil
}

// TranscriptData returns the transcript payload to store, preferring the
// structured responses field. A bare concatenated transcript is stored as a
// JSON-encoded string so ParseTranscript treats it uniformly.
func (p WebhookPayload) TranscriptData() (string, bool) {
	if len(p.Responses) > 0 && string(p.Responses) != "null" {
		return string(p.Responses), true
	}
	if p.ConcatenatedTranscript != nil && *p.ConcatenatedTranscript != "" {
		enc, err := json.Marshal(*p.ConcatenatedTranscript)
		if err != nil {
			return *p.ConcatenatedTranscript, true
		}
		return string(enc), true
	}
	return "", false
}
