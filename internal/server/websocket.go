package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to open websocket")
		return
	}
	defer socket.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	addr := remoteAddr(r)
	log := s.log.With().Str("remote", r.RemoteAddr).Logger()

	c := newClient(s.cfg.OutboundQueueSize)
	go writePump(ctx, socket, c, s.cfg.WriteTimeout)
	go heartbeat(ctx, socket, s.cfg.PingInterval, s.cfg.PingTimeout)

	limiter := newRateLimiter(s.cfg.MessagesPerSecond)

	id, err := s.awaitHandshake(ctx, socket, c, addr, limiter, log)
	if err != nil {
		c.close()
		log.Debug().Err(err).Msg("Connection closed before handshake")
		return
	}
	log = log.With().Str("player_id", id.String()).Logger()
	defer s.hub.Disconnect(id)

	for {
		msg, err := s.readMessage(ctx, socket, limiter, log)
		if err != nil {
			if isClosed(err) {
				log.Debug().Err(err).Msg("Connection closed")
			} else {
				log.Info().Err(err).Msg("Connection lost")
			}
			return
		}
		if msg == nil {
			continue
		}
		s.hub.Deliver(id, *msg)
	}
}

// awaitHandshake reads until the client sends its handshake, dropping
// anything else, and registers the player with the hub.
func (s *Server) awaitHandshake(ctx context.Context, socket *websocket.Conn, c *client, addr netip.Addr, limiter *rate.Limiter, log zerolog.Logger) (uuid.UUID, error) {
	for {
		msg, err := s.readMessage(ctx, socket, limiter, log)
		if err != nil {
			return uuid.Nil, err
		}
		if msg == nil {
			continue
		}
		if msg.Type != MsgHandshake {
			s.metrics.ProtocolError("message before handshake")
			log.Warn().Str("type", msg.Type).Msg("Message before handshake dropped")
			continue
		}
		req, err := decode[HandshakeRequest](msg.Payload)
		if err != nil {
			s.metrics.ProtocolError(err.Error())
			log.Warn().Err(err).Msg("Malformed handshake dropped")
			continue
		}
		return s.hub.Connect(c, req.Name, addr)
	}
}

// readMessage reads one frame. It returns a nil message for frames that are
// dropped: binary, rate limited, malformed or of an unknown type. A read
// error ends the connection. Reads have no deadline; liveness is checked by
// heartbeat, so a quiet client that answers pings stays connected.
func (s *Server) readMessage(ctx context.Context, socket *websocket.Conn, limiter *rate.Limiter, log zerolog.Logger) (*ClientMessage, error) {
	msgType, data, err := socket.Read(ctx)
	if err != nil {
		return nil, err
	}

	if msgType != websocket.MessageText {
		log.Debug().Msg("Non-text frame dropped")
		return nil, nil
	}
	if !limiter.Allow() {
		s.metrics.MessageRateLimited()
		log.Warn().Msg("Rate limit exceeded, message dropped")
		return nil, nil
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.ProtocolError("invalid json")
		log.Warn().Err(err).Msg("Invalid JSON dropped")
		return nil, nil
	}
	if err := ValidateMessageType(msg.Type); err != nil {
		s.metrics.ProtocolError(err.Error())
		log.Warn().Err(err).Msg("Unknown message dropped")
		return nil, nil
	}
	return &msg, nil
}

func (s *Server) originPatterns() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

// remoteAddr parses the peer address of r. It is the zero Addr when the
// address cannot be parsed.
func remoteAddr(r *http.Request) netip.Addr {
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		addr, _ := netip.ParseAddr(r.RemoteAddr)
		return addr.Unmap()
	}
	return ap.Addr().Unmap()
}

// isClosed reports whether err is an orderly close rather than a transport
// failure or timeout.
func isClosed(err error) bool {
	return errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1
}
