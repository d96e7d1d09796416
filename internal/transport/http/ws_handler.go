package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"avtotest-service/internal/app"
	"avtotest-service/internal/domain"
	"avtotest-service/internal/quiz"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler runs a student's quiz over a websocket. Every session transition,
// including auto-advance and the deadline, is pushed as a "state" message.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

const writeWait = 10 * time.Second

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startTicketPayload struct {
	TicketID string `json:"ticketId"`
}

type startRandomPayload struct {
	Size int `json:"size"`
}

type startGroupPayload struct {
	GroupID  string `json:"groupId"`
	TicketID string `json:"ticketId"`
}

type answerPayload struct {
	Option string `json:"option"`
}

// nextPayload names the question index the client was showing; omitted means current.
type nextPayload struct {
	From *int `json:"from"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Code string `json:"code"`
}

// ServeWS upgrades the request and dispatches quiz commands for the authenticated user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	userID := claims.UserID
	log := h.logger.With(zap.String("user_id", userID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// The server's read timeout would otherwise cut a half-hour attempt short.
	_ = conn.SetReadDeadline(time.Time{})

	// Handlers outlive the request context once the connection is hijacked.
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	var (
		pumps       sync.WaitGroup
		unsubscribe = func() {}
	)
	// follow forwards state updates of the user's current session.
	follow := func() {
		unsubscribe()
		updates, cancel, err := h.service.Subscribe(ctx, userID)
		if err != nil {
			unsubscribe = func() {}
			return
		}
		unsubscribe = cancel
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			for {
				select {
				case state, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage{Type: "state", Payload: state}:
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}
	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}
	replyErr := func(err error) {
		_, code := errorStatus(err)
		reply(outboundMessage{Type: "error", Payload: errorPayload{Code: code}})
	}

	// Resume a session left running by a previous connection.
	follow()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var (
			err     error
			started bool
		)
		switch inbound.Type {
		case "start_ticket":
			var p startTicketPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				_, err = h.service.StartTicket(ctx, userID, p.TicketID)
				started = true
			}
		case "start_random":
			var p startRandomPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				_, err = h.service.StartRandom(ctx, userID, p.Size)
				started = true
			}
		case "start_group":
			var p startGroupPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				_, err = h.service.StartGroup(ctx, userID, p.GroupID, p.TicketID)
				started = true
			}
		case "answer":
			var p answerPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				_, err = h.service.Answer(ctx, userID, p.Option)
			}
		case "next":
			var p nextPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				from := -1
				if p.From != nil {
					from = *p.From
				}
				_, err = h.service.Advance(ctx, userID, from)
			}
		case "goto":
			var p gotoPayload
			if err = decodePayload(inbound.Payload, &p); err == nil {
				_, err = h.service.Goto(ctx, userID, p.Index)
			}
		case "finish":
			_, err = h.service.Finish(ctx, userID)
		case "state":
			var state quiz.State
			if state, err = h.service.State(ctx, userID); err == nil {
				reply(outboundMessage{Type: "state", Payload: state})
			}
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Code: "unsupported_message"}})
			continue
		}

		if err != nil {
			log.Debug("quiz command rejected", zap.String("type", inbound.Type), zap.Error(err))
			replyErr(err)
			continue
		}
		if started {
			// The new subscription is primed with the first question.
			follow()
		}
	}

	close(closeSignals)
	unsubscribe()
	pumps.Wait()
	close(send)
	<-writerDone
}

var errBadPayload = fmt.Errorf("%w: malformed payload", domain.ErrValidation)

func decodePayload(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errBadPayload
	}
	return nil
}
