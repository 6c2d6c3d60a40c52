package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
)

func TestDecode(t *testing.T) {
	qid := uuid.New()

	action, req, err := Decode([]byte(`{"action":"autosave","question_id":"` + qid.String() + `","answer":2,"seq":7,"time_spent_seconds":30}`))
	require.NoError(t, err)
	assert.Equal(t, ActionAutosave, action)
	save, ok := req.(*AutosaveRequest)
	require.True(t, ok)
	assert.Equal(t, qid, save.QuestionID)
	assert.Equal(t, int64(7), save.Seq)
	assert.Equal(t, 30, save.TimeSpentSeconds)
	require.NotNil(t, save.Answer)

	action, req, err = Decode([]byte(`{"action":"review","question_id":"` + qid.String() + `","marked_for_review":true}`))
	require.NoError(t, err)
	assert.Equal(t, ActionReview, action)
	assert.True(t, req.(*ReviewRequest).MarkedForReview)

	_, req, err = Decode([]byte(`{"action":"flag","type":"tab-switch"}`))
	require.NoError(t, err)
	assert.Equal(t, string(model.FlagTabSwitch), req.(*FlagRequest).Type)

	action, req, err = Decode([]byte(`{"action":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionPing, action)
	assert.Nil(t, req)

	_, _, err = Decode([]byte(`{"action":"teleport"}`))
	assert.ErrorContains(t, err, "unknown action")

	_, _, err = Decode([]byte(`not json`))
	assert.ErrorContains(t, err, "malformed")
}

func TestWriteAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		raw, err := ReadMessage(conn)
		if err != nil {
			return
		}
		if action, _, err := Decode(raw); err == nil && action == ActionPing {
			_ = WriteTyped(conn, PongResponse{Event: EventPong})
			return
		}
		_ = WriteError(conn, "BAD_REQUEST", "unexpected")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	var pong PongResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, EventPong, pong.Event)
}
