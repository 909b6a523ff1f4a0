package main

import (
	"sync"

	"github.com/lexiqai/interview-client/internal/interview"
	"github.com/lexiqai/interview-client/internal/realtime"
	"github.com/rs/zerolog"
)

// reporter logs state transitions and finished transcript entries. An entry
// is finished once another one follows it; the last is logged by flush.
type reporter struct {
	logger zerolog.Logger
	ended  chan struct{}

	mu        sync.Mutex
	state     realtime.State
	connected bool
	logged    int
	endOnce   sync.Once
}

func newReporter(logger zerolog.Logger) *reporter {
	return &reporter{
		logger: logger,
		ended:  make(chan struct{}),
		state:  realtime.StateDisconnected,
	}
}

func (r *reporter) update(s interview.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.State != r.state {
		event := r.logger.Info()
		if s.Err != "" {
			event = r.logger.Warn().Str("error", s.Err)
		}
		event.Str("from", r.state.String()).Str("to", s.State.String()).Msg("Connection state changed")

		if s.State == realtime.StateConnected {
			r.connected = true
		}
		if r.connected && s.State == realtime.StateDisconnected {
			r.endOnce.Do(func() { close(r.ended) })
		}
		r.state = s.State
	}

	if len(s.Transcript) < r.logged {
		// transcript was reset
		r.logged = 0
	}
	for ; r.logged < len(s.Transcript)-1; r.logged++ {
		r.logEntry(s.Transcript[r.logged])
	}
}

// flush logs whatever has not been logged yet
func (r *reporter) flush(transcript []realtime.Utterance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ; r.logged < len(transcript); r.logged++ {
		r.logEntry(transcript[r.logged])
	}
}

func (r *reporter) logEntry(u realtime.Utterance) {
	r.logger.Info().Str("role", string(u.Role)).Str("text", u.Text).Msg("Transcript")
}
