package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/studyroom"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Dispatcher receives the actions read off a connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, caller studyroom.Caller, action string, data json.RawMessage) *apperrors.APIError
	Disconnect(ctx context.Context, connID string)
}

type inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func encode(ev studyroom.Event) ([]byte, error) {
	return json.Marshal(outbound{Event: ev.Name, Data: ev.Data})
}

// Conn is one websocket client. Only writePump writes to the socket; every
// other goroutine hands frames over through enqueue.
type Conn struct {
	id      string
	userID  string
	ip      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	logger  zerolog.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, id, userID, ip string, messageRate float64, logger zerolog.Logger) *Conn {
	return &Conn{
		id:      id,
		userID:  userID,
		ip:      ip,
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: newLimiter(messageRate),
		logger:  logger.With().Str("conn", id).Str("user", userID).Logger(),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// enqueue never blocks. Frames for a closed or backed-up connection are
// dropped.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Msg("send buffer full, dropping frame")
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks until the client goes away, handing every well-formed
// envelope to d.
func (c *Conn) readPump(ctx context.Context, d Dispatcher, maxMessageBytes int64) {
	c.ws.SetReadLimit(maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	caller := studyroom.Caller{ConnectionID: c.id, UserID: c.userID}
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("read error")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(message, &in); err != nil || in.Action == "" {
			c.reject(in.Action, apperrors.InvalidRequest("expected {\"action\": ..., \"data\": ...}"))
			continue
		}
		if !c.limiter.Allow() {
			c.reject(in.Action, apperrors.RateLimited("slow down"))
			continue
		}

		if apiErr := d.Dispatch(ctx, caller, in.Action, in.Data); apiErr != nil {
			c.logger.Debug().Str("action", in.Action).Str("code", apiErr.Code).Msg("action rejected")
		}
	}
}

func (c *Conn) reject(action string, apiErr *apperrors.APIError) {
	frame, err := encode(studyroom.Event{
		Name: studyroom.EventError,
		Data: studyroom.Rejection{Action: action, Code: apiErr.Code, Message: apiErr.Message},
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}
