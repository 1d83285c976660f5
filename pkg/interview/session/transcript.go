package session

import (
	"strings"
	"time"

	"github.com/mbio-ai/interviewkit/pkg/interview/metrics"
	"github.com/mbio-ai/interviewkit/pkg/interview/protocol"
)

// minAnswerWords filters acknowledgement noise ("yes", "okay") from counting
// as an answered question.
const minAnswerWords = 3

// Utterance is one committed speech turn.
type Utterance struct {
	Role  string    `json:"role"`
	Text  string    `json:"text"`
	Phase string    `json:"phase,omitempty"`
	At    time.Time `json:"at"`
}

// Note is a user-authored text item added alongside the spoken transcript.
type Note struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// aggregator turns streaming per-role segments into an ordered transcript of
// finalized utterances plus a live preview per role. Commit order is the
// order in which final segments are observed; entries are never mutated once
// appended.
type aggregator struct {
	entries       []Utterance
	notes         []Note
	previews      map[string]string
	answered      int
	totalExpected int
}

func newAggregator(totalExpected int) *aggregator {
	return &aggregator{
		previews:      make(map[string]string),
		totalExpected: totalExpected,
	}
}

// feed processes one streaming segment. Non-final segments only update the
// role's preview. Final, non-empty segments commit an utterance and clear
// the preview.
func (a *aggregator) feed(role, text string, final bool, phase string, at time.Time) {
	a.previews[role] = text
	if !final {
		return
	}
	delete(a.previews, role)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	a.entries = append(a.entries, Utterance{Role: role, Text: trimmed, Phase: phase, At: at})
	metrics.UtterancesCommitted.WithLabelValues(role).Inc()

	if role == protocol.RoleUser && len(strings.Fields(trimmed)) >= minAnswerWords {
		a.answered++
		if a.totalExpected > 0 && a.answered > a.totalExpected {
			a.answered = a.totalExpected
		}
	}
}

// addNote appends a user-authored note. Notes join the transcript as user
// utterances but do not advance the answered counter.
func (a *aggregator) addNote(text string, at time.Time) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	a.notes = append(a.notes, Note{Text: trimmed, At: at})
	a.entries = append(a.entries, Utterance{Role: protocol.RoleUser, Text: trimmed, At: at})
}

func (a *aggregator) preview(role string) string {
	return a.previews[role]
}

func (a *aggregator) answeredCount() int {
	return a.answered
}

func (a *aggregator) transcript() []Utterance {
	out := make([]Utterance, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *aggregator) noteList() []Note {
	out := make([]Note, len(a.notes))
	copy(out, a.notes)
	return out
}

// answers concatenates committed user utterances into a single summary
// field, one per line.
func (a *aggregator) answers() string {
	var parts []string
	for _, u := range a.entries {
		if u.Role == protocol.RoleUser {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, "\n")
}
