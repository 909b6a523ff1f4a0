package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_client_active_sessions",
		Help: "Number of interview sessions with an open connection",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_client_sessions_total",
		Help: "Total number of interview sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_client_session_duration_seconds",
		Help:    "Duration of interview sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	connectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_client_connect_latency_seconds",
		Help:    "Time from dial to open connection",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Message metrics
	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_inbound_messages_total",
		Help: "Inbound messages by type",
	}, []string{"type"})

	outboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_outbound_messages_total",
		Help: "Outbound messages by type",
	}, []string{"type"})

	// Audio metrics
	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_capture_frames_dropped_total",
		Help: "Captured frames dropped before transmission",
	}, []string{"reason"})

	chunksPlayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_playback_chunks_total",
		Help: "Playback chunks by outcome",
	}, []string{"status"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_audio_bytes_total",
		Help: "Total PCM16 audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_client_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single interview session.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionID string
	startTime time.Time
	dialStart time.Time
	open      bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordDialStart records the start of the connection attempt
func (m *Metrics) RecordDialStart() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.dialStart = time.Now()
	m.mu.Unlock()
}

// RecordSessionOpen records an established connection
func (m *Metrics) RecordSessionOpen() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return
	}
	m.open = true
	m.startTime = time.Now()
	if !m.dialStart.IsZero() {
		connectLatency.Observe(time.Since(m.dialStart).Seconds())
	}
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionClose records the end of an established connection
func (m *Metrics) RecordSessionClose() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return
	}
	m.open = false
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordInbound records an inbound message by type
func (m *Metrics) RecordInbound(msgType string) {
	if m == nil {
		return
	}
	inboundMessages.WithLabelValues(msgType).Inc()
}

// RecordOutbound records an outbound message by type
func (m *Metrics) RecordOutbound(msgType string) {
	if m == nil {
		return
	}
	outboundMessages.WithLabelValues(msgType).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	if m == nil {
		return
	}
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameDropped records a captured frame that was never sent
func (m *Metrics) RecordFrameDropped(reason string) {
	if m == nil {
		return
	}
	framesDropped.WithLabelValues(reason).Inc()
}

// RecordChunk records the outcome of one playback chunk
func (m *Metrics) RecordChunk(status string) {
	if m == nil {
		return
	}
	chunksPlayed.WithLabelValues(status).Inc()
}
