package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

const DefaultReconnectDelay = 5 * time.Second

type StreamHandler struct {
	gateway        ports.StreamGateway
	catalog        ports.StatementCatalog
	reconnectDelay time.Duration
	log            *zap.Logger
}

func NewStreamHandler(gateway ports.StreamGateway, catalog ports.StatementCatalog, reconnectDelay time.Duration, log *zap.Logger) *StreamHandler {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamHandler{
		gateway:        gateway,
		catalog:        catalog,
		reconnectDelay: reconnectDelay,
		log:            log,
	}
}

// Stream opens a server-sent event stream of tally updates. The first
// frame is always a hello; comment frames keep idle proxies from closing
// the connection.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	statementID, ok := statementIDParam(w, r)
	if !ok {
		return
	}

	exists, err := h.catalog.Exists(r.Context(), statementID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if !exists {
		http.Error(w, domain.ErrStatementNotFound.Error(), http.StatusNotFound)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Debug("failed to clear write deadline", zap.Error(err))
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, rc: rc}
	if err := sink.retry(h.reconnectDelay); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			h.log.Error("response writer cannot flush; streaming unavailable")
		}
		return
	}

	if err := h.gateway.Serve(r.Context(), statementID, sink); err != nil {
		h.log.Warn("stream ended with error",
			zap.Stringer("statement_id", statementID),
			zap.Error(err),
		)
	}
}

type sseSink struct {
	w  io.Writer
	rc *http.ResponseController
}

var _ ports.StreamSink = (*sseSink)(nil)

func (s *sseSink) Hello(hello domain.Hello) error {
	return s.data(hello)
}

func (s *sseSink) Send(msg domain.FanoutMessage) error {
	return s.data(msg)
}

func (s *sseSink) Fail(e domain.StreamError) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) KeepAlive() error {
	if _, err := io.WriteString(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) retry(d time.Duration) error {
	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) data(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.rc.Flush()
}
