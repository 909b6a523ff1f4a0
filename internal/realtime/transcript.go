package realtime

import "sync"

// Role identifies who spoke an utterance
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one transcript entry
type Utterance struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Transcript is the running conversation. Consecutive assistant deltas merge
// into one entry; a user utterance always starts a new one.
type Transcript struct {
	mu      sync.RWMutex
	entries []Utterance
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{}
}

// AppendAssistant merges delta into the last entry if it belongs to the
// assistant, otherwise starts a new assistant entry
func (t *Transcript) AppendAssistant(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.entries); n > 0 && t.entries[n-1].Role == RoleAssistant {
		t.entries[n-1].Text += delta
		return
	}
	t.entries = append(t.entries, Utterance{Role: RoleAssistant, Text: delta})
}

// AppendUser adds a user entry
func (t *Transcript) AppendUser(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Utterance{Role: RoleUser, Text: text})
}

// Snapshot returns a copy of the entries
func (t *Transcript) Snapshot() []Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset empties the transcript
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
