package provider

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport logs outbound platform requests. Headers and bodies are
// never logged, so tokens stay out of the log.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *zap.Logger
}

// NewLoggingTransport wraps base, defaulting to http.DefaultTransport.
func NewLoggingTransport(base http.RoundTripper, logger *zap.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingTransport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.Logger.Warn("platform request failed",
			zap.String("method", req.Method),
			zap.String("host", req.URL.Host),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	t.Logger.Debug("platform request",
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
	)
	return resp, nil
}
