package handlers

import (
	"encoding/json"
	"net/http"

	"nhooyr.io/websocket"
)

// HandleFrontierStream handles GET /api/frontier/stream.
// The connection is upgraded to a websocket and every frontier point is sent
// as one text message as soon as it is solved.
func (h *Handler) HandleFrontierStream(w http.ResponseWriter, r *http.Request) {
	sel, allowShort, err := frontierQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sweep, err := h.service.FrontierSweep(r.Context(), sel, allowShort)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	sent := 0
	for point, err := range sweep.Points(ctx) {
		if err != nil {
			h.log.Error().Err(err).Int("sent", sent).Msg("Frontier stream aborted")
			conn.Close(websocket.StatusInternalError, "frontier solve failed")
			return
		}
		data, err := json.Marshal(point)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to encode frontier point")
			conn.Close(websocket.StatusInternalError, "encoding failed")
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			h.log.Debug().Err(err).Int("sent", sent).Msg("Frontier stream client went away")
			return
		}
		sent++
	}

	h.log.Debug().Int("sent", sent).Msg("Frontier stream complete")
	conn.Close(websocket.StatusNormalClosure, "")
}
