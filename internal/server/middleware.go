package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultPlayerName    = "Player"
	MaxPlayerNameLength  = 20
	rateLimiterBurstRate = 2
)

// newRateLimiter returns the per-connection inbound limiter: perSecond
// messages with a burst of twice that.
func newRateLimiter(perSecond float64) *rate.Limiter {
	burst := int(perSecond * rateLimiterBurstRate)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

var validMessageTypes = []string{
	MsgHandshake,
	MsgFetchLobbyList,
	MsgCreateAndJoinLobby,
	MsgJoinLobby,
	MsgLeaveCurrentLobby,
	MsgGetLobbyInfo,
	MsgGetPlayerInfo,
	MsgSetLobbySettings,
	MsgChangePlayerTeam,
	MsgSwitchPlayerPositions,
	MsgKickPlayer,
	MsgGoToChampSelect,
	MsgSelectChamp,
	MsgLockSelection,
	MsgDisconnect,
}

// ValidateMessageType checks if a client message type is recognized.
func ValidateMessageType(msgType string) error {
	if !slices.Contains(validMessageTypes, msgType) {
		return fmt.Errorf("%w '%s'", ErrUnknownMessageType, msgType)
	}
	return nil
}

// normalizeDisplayName trims name, substitutes DefaultPlayerName for an
// empty one and cuts it to MaxPlayerNameLength runes.
func normalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxPlayerNameLength]))
	}
	return name
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every plain HTTP request at debug level.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("HTTP request")
			next.ServeHTTP(w, r)
		})
	}
}
