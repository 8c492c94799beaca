package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/rotawire/internal/auth"
	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/proto"
)

const writeTimeout = 5 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             *core.Hub
	jwt             *auth.JWTConfig
	log             *zerolog.Logger
	clock           clock.Clock
	maxMessageBytes int64
	rateLimit       int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, jwtConfig *auth.JWTConfig, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:             hub,
		jwt:             jwtConfig,
		log:             logger,
		clock:           clock.New(),
		maxMessageBytes: cfg.MaxMessageBytes,
		rateLimit:       cfg.WSRateLimit,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ValidateToken(h.jwt, r.URL.Query().Get("token"))
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = codec.NewEncoder(w).Encode(ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := core.NewClient(uuid.NewString(), claims.EmployeeID, 0)
	log := h.log.With().Str("client_id", client.ID).Str("employee_id", client.EmployeeID).Logger()

	hello, err := envelope(proto.TypeConnected, proto.ConnectedData{
		ConnectionID: client.ID,
		EmployeeID:   client.EmployeeID,
	})
	if err == nil {
		err = h.write(ctx, conn, hello)
	}
	if err != nil {
		log.Warn().Err(err).Msg("send connected")
		return
	}

	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)
	log.Info().Msg("ws client connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason, err := closeStatus(err)
	if err != nil {
		log.Warn().Err(err).Msg("ws connection closed with error")
	}

	log.Info().Msg("ws client disconnected")
	conn.Close(status, reason)
}

// closeStatus maps the error that ended a connection to the close frame sent
// back. Clean endings yield a nil error.
func closeStatus(err error) (websocket.StatusCode, string, error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing", nil
	}

	switch status := websocket.CloseStatus(err); status {
	case websocket.StatusNormalClosure, websocket.StatusNoStatusRcvd:
		// 1005 is reserved and must not be sent on the wire.
		return websocket.StatusNormalClosure, "closing", nil
	case websocket.StatusGoingAway:
		return websocket.StatusGoingAway, "closing", nil
	default:
		return websocket.StatusInternalError, "internal error", err
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.clock, h.rateLimit)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			log.Warn().Msg("inbound rate limit exceeded")
			if err := h.writeError(ctx, conn, "rate_limited", "too many messages"); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Envelope
		if msgType != websocket.MessageText || codec.Unmarshal(data, &inbound) != nil || inbound.Type == "" {
			log.Debug().Msg("malformed inbound frame")
			if err := h.writeError(ctx, conn, core.ErrCodeBadRequest, "malformed message"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.writeError(ctx, conn, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return websocket.CloseError{Code: websocket.StatusGoingAway, Reason: "server shutting down"}
			}
			out, err := outboundFromEvent(event)
			if err != nil {
				log.Error().Err(err).Msg("map event")
				continue
			}
			if err := h.write(ctx, conn, out); err != nil {
				log.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	out, err := envelope(proto.TypeError, proto.Error{Code: code, Msg: msg})
	if err != nil {
		return err
	}
	return h.write(ctx, conn, out)
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, v proto.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
