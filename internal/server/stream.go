package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 10 * time.Second

// handleStream upgrades to a WebSocket and pushes every step record of
// the simulation until the client disconnects or the run is evicted.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	simulation, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch := simulation.Subscribe()
	defer simulation.Unsubscribe(ch)

	s.log.Info().Str("simulation_id", simulation.ID).Msg("Stream client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		case record, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "simulation evicted")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, record)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("Stream write failed, dropping client")
				return
			}
		}
	}
}
