// internal/server/stream.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/automation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed for the client to send its fill request.
	requestWait = 30 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Every session emits at most eight states plus one final message.
	sendChannelSize = 16
)

// Stream message types.
const (
	msgTypeState  = "state"
	msgTypeResult = "result"
	msgTypeError  = "error"
)

// streamMessage is one frame of the fill-progress stream.
type streamMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	State     automation.State `json:"state,omitempty"`
	// Timestamp is RFC 3339 with milliseconds, as produced by JS toISOString.
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// handleFillStream runs a fill request received over a websocket and streams
// each state transition back before the final result or error. A client that
// goes away ends a preview hold early, like an abandoned HTTP request would;
// the fill itself always runs to completion.
func (s *Server) handleFillStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("Failed to upgrade fill stream.", zap.Error(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(zap.String("remote", r.RemoteAddr), zap.String("stream", "fill-form"))

	conn.SetReadLimit(maxFillRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(requestWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Info("Fill stream closed before a request arrived.", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan streamMessage, sendChannelSize)
	writerDone := make(chan struct{})
	go s.writePump(conn, send, writerDone, cancel, logger)
	go readPump(conn, cancel)

	req, rejected := decodeFillRequest(data)
	if rejected != nil {
		send <- streamMessage{Type: msgTypeError, Timestamp: timestamp(time.Now()), Data: rejected}
		close(send)
		<-writerDone
		return
	}

	observer := func(ev automation.Event) {
		msg := streamMessage{Type: msgTypeState, SessionID: ev.SessionID, State: ev.State, Timestamp: timestamp(ev.At)}
		select {
		case send <- msg:
		default:
			logger.Warn("Fill stream buffer full, dropping state event.", zap.String("state", string(ev.State)))
		}
	}

	result, err := s.filler.Run(ctx, req, observer)
	final := streamMessage{Type: msgTypeResult, Timestamp: timestamp(time.Now()), Data: result}
	if err != nil {
		status, body := fillError(err)
		logger.Error("Streamed form filling failed.", zap.Int("status", status), zap.Error(err))
		final = streamMessage{Type: msgTypeError, Timestamp: timestamp(time.Now()), Data: body}
	}
	var serr *automation.SessionError
	if errors.As(err, &serr) {
		final.SessionID = serr.SessionID
	}

	send <- final
	close(send)
	<-writerDone
}

// writePump owns every write to conn. It drains send, pinging the peer while
// idle, and ends with a close frame once send is closed.
func (s *Server) writePump(conn *websocket.Conn, send <-chan streamMessage, done chan<- struct{}, cancel context.CancelFunc, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	broken := false
	for {
		select {
		case msg, ok := <-send:
			if !ok {
				if !broken {
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}
			if broken {
				continue
			}
			if err := writeJSON(conn, msg); err != nil {
				logger.Warn("Failed to write to fill stream.", zap.Error(err))
				broken = true
				cancel()
			}

		case <-ticker.C:
			if broken {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("Failed to ping fill stream.", zap.Error(err))
				broken = true
				cancel()
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump processes control frames and cancels the request context when the
// peer disconnects. Further data messages are ignored.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
