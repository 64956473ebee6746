package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/joescharf/agentwatch/internal/notify"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// handleStream upgrades to a websocket and forwards live state transitions
// until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusInternalServerError, "stream bus not configured")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	if err := streamTransitions(ctx, s.bus, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func streamTransitions(ctx context.Context, bus *notify.Bus, writer wsWriter) error {
	sub := bus.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-sub:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(st)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
