package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/interview-client/internal/capture"
	"github.com/lexiqai/interview-client/internal/config"
	"github.com/lexiqai/interview-client/internal/device"
	"github.com/lexiqai/interview-client/internal/interview"
	"github.com/lexiqai/interview-client/internal/observability"
	"github.com/lexiqai/interview-client/internal/playback"
	"github.com/lexiqai/interview-client/internal/realtime"
	"github.com/lexiqai/interview-client/internal/resilience"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyProfile(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load interview profile: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr; stdout may be carrying audio
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	endpoint := cfg.RealtimeURL
	if endpoint == "" {
		endpoint, err = realtime.EndpointURL(cfg.PageURL, cfg.RealtimePort)
		if err != nil {
			logger.Fatal().Err(err).Msg("Cannot derive realtime endpoint")
		}
	}

	logger.Info().
		Str("endpoint", endpoint).
		Str("audio_input", cfg.AudioInput).
		Str("audio_output", cfg.AudioOutput).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Interview client starting")

	mic, speaker := openDevices(cfg)
	report := newReporter(logger)

	iv := interview.New(interview.Options{
		Endpoint:   endpoint,
		Device:     mic,
		Speaker:    speaker,
		SampleRate: cfg.SampleRate,
		FrameSize:  cfg.FrameSize,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.DialMaxAttempts,
			InitialBackoff:    cfg.DialBackoffDuration(),
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		HandshakeTimeout: cfg.DialTimeoutDuration(),
		WriteTimeout:     cfg.WriteTimeoutDuration(),
		OnChange:         report.update,
	})

	server := statusServer(cfg, iv)
	go func() {
		logger.Info().Str("port", cfg.StatusPort).Msg("Status server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Status server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := realtime.SessionConfig{
		JobDescription: cfg.JobDescription,
		SessionID:      cfg.SessionID,
	}
	if err := iv.Start(ctx, session); err != nil {
		logger.Error().Err(err).Msg("Failed to start interview")
	} else {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down...")
		case <-report.ended:
			logger.Info().Msg("Interview server closed the connection")
		}
	}

	iv.Close()
	report.flush(iv.Transcript())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Status server forced to shutdown")
	}

	if msg := iv.Err(); msg != "" {
		logger.Error().Str("error", msg).Msg("Interview ended with an error")
		os.Exit(1)
	}
	logger.Info().Msg("Interview client exited")
}

// openDevices maps AUDIO_INPUT/AUDIO_OUTPUT to devices: "-" is raw PCM16 on
// stdin/stdout, anything else a WAV file
func openDevices(cfg *config.Config) (capture.Device, playback.Speaker) {
	var mic capture.Device
	if cfg.AudioInput == "-" {
		mic = &device.PCMSource{Reader: os.Stdin, SampleRate: cfg.SampleRate}
	} else {
		mic = &device.WAVSource{Path: cfg.AudioInput}
	}

	var speaker playback.Speaker
	if cfg.AudioOutput == "-" {
		speaker = &device.PCMSpeaker{Writer: os.Stdout}
	} else {
		speaker = &device.WAVSpeaker{Path: cfg.AudioOutput}
	}
	return mic, speaker
}

func statusServer(cfg *config.Config, iv *interview.Interview) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"realtime": func(ctx context.Context) (bool, error) {
			if iv.IsConnected() {
				return true, nil
			}
			return false, fmt.Errorf("connection %s", iv.State())
		},
	}))
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(iv.Snapshot())
	})

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.StatusPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
