package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	PingPeriod = (pongWait * 9) / 10

	// MaxMessageBytes bounds one inbound frame; artifacts arrive base64 encoded.
	MaxMessageBytes = 32 << 20
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WritePing sends a control ping so the peer's pong extends the read deadline.
func WritePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// PrepareRead sets the frame limit and keeps the read deadline alive on pongs.
func PrepareRead(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ReadEnvelope reads one message and peeks at its action. The raw frame is
// kept so the caller can decode the action-specific body.
func ReadEnvelope(conn *websocket.Conn) (RequestEnvelope, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return RequestEnvelope{}, err
	}
	env, err := ParseEnvelope(data)
	if err != nil {
		return RequestEnvelope{}, err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	return env, nil
}

// ParseEnvelope decodes the action of a raw frame.
func ParseEnvelope(data []byte) (RequestEnvelope, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return RequestEnvelope{}, fmt.Errorf("decode envelope: %w", ErrMalformed)
	}
	if env.Action == "" {
		return RequestEnvelope{}, fmt.Errorf("missing action: %w", ErrMalformed)
	}
	env.Raw = data
	return env, nil
}

// Decode unmarshals the envelope's raw frame into v.
func (e RequestEnvelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Action, ErrMalformed)
	}
	return nil
}
