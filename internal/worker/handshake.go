package worker

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"lobby-server/internal/retry"
)

// Handshaker exchanges match details for player tokens with a worker.
type Handshaker interface {
	Handshake(ctx context.Context, addr string, req Handshake) (PlayerTokens, error)
}

// WSHandshaker talks to workers over a websocket on their internal port. The
// worker may still be starting, so dialing is retried until ctx is done.
type WSHandshaker struct {
	Backoff *retry.Backoff
	Log     zerolog.Logger
}

func NewWSHandshaker(log zerolog.Logger) *WSHandshaker {
	return &WSHandshaker{
		Backoff: retry.WorkerDial(),
		Log:     log.With().Str("component", "handshake").Logger(),
	}
}

func (h *WSHandshaker) Handshake(ctx context.Context, addr string, req Handshake) (PlayerTokens, error) {
	url := "ws://" + addr + "/"

	var conn *websocket.Conn
	err := h.Backoff.Do(ctx, func(attempt int) error {
		c, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			h.Log.Trace().Err(err).Int("attempt", attempt).Str("url", url).Msg("Worker not reachable yet")
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return PlayerTokens{}, eris.Wrapf(err, "dial worker at %s", url)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		return PlayerTokens{}, eris.Wrap(err, "send handshake")
	}

	var resp PlayerTokens
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return PlayerTokens{}, eris.Wrap(err, "read player tokens")
	}

	conn.Close(websocket.StatusNormalClosure, "tokens received")
	return resp, nil
}
