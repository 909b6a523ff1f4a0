package realtime

import (
	"fmt"
	"time"
)

// Outbound message types
const (
	TypeStartSession = "start_session"
	TypeAudio        = "audio"
	TypeStopSession  = "stop_session"
)

// Inbound message types
const (
	TypeSessionStarted  = "session_started"
	TypeAudioDelta      = "audio_delta"
	TypeTranscriptDelta = "transcript_delta"
	TypeUserTranscript  = "user_transcript"
	TypeError           = "error"
	TypeSessionEnded    = "session_ended"
)

// StartSession opens an interview on the server
type StartSession struct {
	Type           string `json:"type"`
	JobDescription string `json:"job_description"`
	SessionID      string `json:"session_id"`
}

// AudioMessage carries one base64 PCM16 frame
type AudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// StopSession asks the server to end the interview
type StopSession struct {
	Type string `json:"type"`
}

// Inbound is the union of every message the server sends. Fields not used by
// a given type are left empty.
type Inbound struct {
	Type    string `json:"type"`
	Audio   string `json:"audio,omitempty"`   // audio_delta
	Text    string `json:"text,omitempty"`    // transcript_delta, user_transcript
	Message string `json:"message,omitempty"` // error
}

// SessionConfig is what the client sends in start_session
type SessionConfig struct {
	JobDescription string
	SessionID      string // generated when empty
}

// FallbackSessionID returns the id used when the caller supplies none
func FallbackSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d", now.UnixMilli())
}
