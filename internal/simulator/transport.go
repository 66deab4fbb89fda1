package simulator

import (
	"context"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/internal/execution"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// ServeHTTP accepts an execute request and streams its frames as
// server-sent events.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req core.ExecuteRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid execute request"}`))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.Stream(r.Context(), req, func(ev core.Event) error {
		if err := execution.WriteFrame(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		s.logger.Warn("execute stream aborted", "error", err)
	}
}

// Open runs the simulation in-process and satisfies execution.Runner.
// Closing the returned reader aborts the simulation.
func (s *Service) Open(ctx context.Context, req core.ExecuteRequest) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		err := s.Stream(ctx, req, func(ev core.Event) error {
			return execution.WriteFrame(pw, ev)
		})
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}
