package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamHandlers pushes a job's progress and status changes over a websocket.
type StreamHandlers struct {
	Jobs     JobAPI
	Progress core.ProgressSubscriber
	Upgrader websocket.Upgrader
	// PingInterval defaults to 30s.
	PingInterval time.Duration
	Logger       *slog.Logger
}

// StreamJob handles GET /jobs/{id}/stream. The first message is a snapshot of the job;
// the socket is closed after a terminal status is sent.
func (h *StreamHandlers) StreamJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	jobID := chi.URLParam(r, "id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the snapshot so no transition falls in between.
	events, unsubscribe, err := h.Progress.Subscribe(ctx, jobID)
	if err != nil {
		WriteError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternal, "subscribe to job progress"))
		return
	}
	defer unsubscribe()

	job, err := h.Jobs.Get(ctx, owner, jobID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger().DebugContext(ctx, "websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	go discardIncoming(conn, cancel)

	s := &jobStream{conn: conn}
	snapshot := model.ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Timestamp: job.UpdatedAt,
	}
	if err := s.send(snapshot); err != nil || job.Status.IsTerminal() {
		s.close()
		return
	}

	interval := h.PingInterval
	if interval <= 0 {
		interval = streamPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				s.close()
				return
			}
			if s.stale(ev) {
				continue
			}
			if err := s.send(ev); err != nil {
				h.logger().DebugContext(ctx, "websocket write failed", "job_id", jobID, "error", err)
				return
			}
			if ev.Status.IsTerminal() {
				s.close()
				return
			}
		}
	}
}

func (h *StreamHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// discardIncoming reads until the peer goes away; control frames are handled while reading.
func discardIncoming(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// jobStream is owned by the handler goroutine, the only writer on conn.
type jobStream struct {
	conn   *websocket.Conn
	last   model.ProgressEvent
	primed bool
}

// stale reports an event that would move progress backwards without a status change,
// which happens when it was published before the snapshot was read.
func (s *jobStream) stale(ev model.ProgressEvent) bool {
	return s.primed && ev.Status == s.last.Status && ev.Progress < s.last.Progress
}

func (s *jobStream) send(ev model.ProgressEvent) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		return err
	}
	s.last, s.primed = ev, true
	return nil
}

func (s *jobStream) close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}
