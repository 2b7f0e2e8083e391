package calls

import "time"

// Call is the local record of one outbound call placed through the voice-AI
// provider.
//
// Join-key invariant: ProviderCallID is assigned once the provider accepts
// the call and never changes afterwards. It is unique among non-empty values
// and is the only key both async update feeds (webhook push, bulk sync pull)
// use to find the record.
//
// A record may carry an empty ProviderCallID when the provider rejected the
// start request; such orphans are kept, not rolled back.

type Call struct {
	ID             string `json:"id" db:"id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	PhoneNumber string `json:"phone_number" db:"phone_number"`
	FromNumber  string `json:"from_number" db:"from_number"`

	// Script is the instruction payload sent to the provider at creation.
	Script string `json:"script" db:"script"`

	Status CallStatus `json:"status" db:"status"`

	// Transcript holds the raw transcript payload as delivered by the
	// provider: either a JSON array of turns, a JSON-encoded string, or a
	// legacy raw string. ParseTranscript normalizes all three.
	Transcript string `json:"transcript,omitempty" db:"transcript"`

	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	Issues          string `json:"issues,omitempty" db:"issues"`
	TransferredTo   string `json:"transferred_to,omitempty" db:"transferred_to"`
	Summary         string `json:"summary,omitempty" db:"summary"`

	// Pathway is the provider model/pathway tag the call was placed with.
	Pathway string `json:"pathway,omitempty" db:"pathway"`

	// ReviewStatus is a workflow tag, not driven by the state machine.
	ReviewStatus string `json:"review_status" db:"review_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusInProgress  CallStatus = "in_progress"
	CallStatusCompleted   CallStatus = "completed"
	CallStatusNotAnswered CallStatus = "not_answered"
)

// Sentinel values used when a webhook arrives for a call this system never
// created (e.g. placed directly from the provider dashboard).
const (
	UnknownPhoneNumber = "Unknown"
	SystemFromNumber   = "System"
	ImportedScript     = "Imported from provider"
	DefaultPathway     = "base"
	ReviewPending      = "pending"
)

// MapProviderStatus maps a provider status signal to the local state machine.
// Unknown and empty signals map to in_progress; both update paths use this
// same mapping.
func MapProviderStatus(s string) CallStatus {
	switch s {
	case "completed":
		return CallStatusCompleted
	case "no-answer":
		return CallStatusNotAnswered
	default:
		return CallStatusInProgress
	}
}

// UpdateSource tags which feed produced a merge, for audit and metrics.
type UpdateSource string

const (
	SourceWebhook UpdateSource = "webhook"
	SourceSync    UpdateSource = "sync"
)
