package calls

import (
	"encoding/json"
	"strings"
)

// Turn is one entry of a normalized transcript: who spoke and what was said.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// transcriptEntry accepts the turn shapes the provider has shipped over time:
// {user, text}, {speaker, text}, {role, content} and the older Q&A capture
// format {question, answer}.
type transcriptEntry struct {
	User     string `json:"user"`
	Speaker  string `json:"speaker"`
	Role     string `json:"role"`
	Text     string `json:"text"`
	Content  string `json:"content"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

const rawTranscriptSpeaker = "transcript"

// ParseTranscript normalizes a stored transcript payload into turns.
//
// The stored value may be a JSON array of turn objects, a JSON-encoded string
// holding one concatenated transcript, or a raw non-JSON string from older
// provider versions. Structured decode is attempted first; anything that
// fails decoding is wrapped as a single synthetic turn. This tolerance
// absorbs provider schema drift and must never return an error.
func ParseTranscript(raw string) []Turn {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var entries []transcriptEntry
	if err := json.Unmarshal([]byte(raw), &entries); err == nil {
		turns := make([]Turn, 0, len(entries))
		for _, e := range entries {
			turns = append(turns, e.toTurn())
		}
		return turns
	}

	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return []Turn{{Speaker: rawTranscriptSpeaker, Text: s}}
	}

	return []Turn{{Speaker: rawTranscriptSpeaker, Text: raw}}
}

func (e transcriptEntry) toTurn() Turn {
	if e.Question != "" || e.Answer != "" {
		return Turn{Speaker: e.Question, Text: e.Answer}
	}
	t := Turn{Text: e.Text}
	if t.Text == "" {
		t.Text = e.Content
	}
	switch {
	case e.User != "":
		t.Speaker = e.User
	case e.Speaker != "":
		t.Speaker = e.Speaker
	case e.Role != "":
		t.Speaker = e.Role
	default:
		t.Speaker = "unknown"
	}
	return t
}
