package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait is how long a client may stay silent before it is dropped.
	// Clients ping well inside it.
	readWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads the next text frame with a read deadline.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := conn.ReadMessage()
	return raw, err
}

// Decode parses a client frame into the request struct of its action.
func Decode(raw []byte) (Action, any, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("malformed message: %w", err)
	}

	var dst any
	switch env.Action {
	case ActionAutosave:
		dst = &AutosaveRequest{}
	case ActionReview:
		dst = &ReviewRequest{}
	case ActionFlag:
		dst = &FlagRequest{}
	case ActionSubmit:
		return env.Action, &SubmitRequest{Action: env.Action}, nil
	case ActionPing:
		return env.Action, nil, nil
	default:
		return env.Action, nil, fmt.Errorf("unknown action: %q", env.Action)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return env.Action, nil, fmt.Errorf("malformed %s message: %w", env.Action, err)
	}
	return env.Action, dst, nil
}
