package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-service/internal/auth"
	"collab-service/internal/mocks"
	"collab-service/internal/models"
	"collab-service/internal/ratelimit"
)

func newTestServer(t *testing.T, limit int) (*httptest.Server, *mocks.TokenVerifierMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rooms := new(mocks.RoomRepositoryMock)
	rooms.On("GetRoom", mock.Anything, roomA).Return(models.Room{RoomID: roomA, Name: "alpha", OwnerID: "owner"}, nil)
	rooms.On("AddActiveParticipant", mock.Anything, mock.Anything).Return(true, nil)
	rooms.On("RemoveActiveParticipant", mock.Anything, mock.Anything).Return(nil)
	rooms.On("ListActiveParticipants", mock.Anything, mock.Anything).Return([]models.ActiveParticipant{}, nil)
	verifier := new(mocks.TokenVerifierMock)
	verifier.On("VerifyConnectionToken", mock.Anything, "alice-token").Return(auth.Identity{UserID: "a", Username: "alice"}, nil)
	verifier.On("VerifyConnectionToken", mock.Anything, "bob-token").Return(auth.Identity{UserID: "b", Username: "bob"}, nil)
	verifier.On("VerifyConnectionToken", mock.Anything, mock.Anything).Return(nil, auth.ErrInvalidToken)

	hub := NewHub(rooms, new(mocks.ProjectRepositoryMock), verifier)
	handler := NewHandler(hub, ratelimit.New(limit, time.Minute, 100), nil, 16, 1<<20)
	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, verifier
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Envelope{Type: event, Data: raw}))
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env models.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == event {
			return env.Data
		}
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	_, resp, err := dial(t, srv, "forged")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		_, resp, err := dial(t, srv, "forged")
		require.Error(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	_, resp, err := dial(t, srv, "alice-token")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestTokenFromQueryParameter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", tokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer xyz")
	assert.Equal(t, "xyz", tokenFromRequest(req))

	req.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, tokenFromRequest(req))
}

func TestWebsocketEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	alice, _, err := dial(t, srv, "alice-token")
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := dial(t, srv, "bob-token")
	require.NoError(t, err)
	defer bob.Close()

	writeEvent(t, alice, EventJoinRoom, map[string]string{"roomId": roomA})
	readEvent(t, alice, EventRoomJoined)

	writeEvent(t, bob, EventJoinRoom, map[string]string{"roomId": roomA})
	var snapshot roomJoinedEvent
	require.NoError(t, json.Unmarshal(readEvent(t, bob, EventRoomJoined), &snapshot))
	assert.ElementsMatch(t, []string{"a", "b"}, userIDs(snapshot.Participants))

	var joined memberEvent
	require.NoError(t, json.Unmarshal(readEvent(t, alice, EventUserJoined), &joined))
	assert.Equal(t, "b", joined.User.ID)

	writeEvent(t, alice, EventCodeChange, map[string]string{"fileId": "f1", "content": "hello"})
	var update codeUpdatedEvent
	require.NoError(t, json.Unmarshal(readEvent(t, bob, EventCodeUpdated), &update))
	assert.Equal(t, "hello", update.Content)
	assert.Equal(t, "a", update.User.ID)

	writeEvent(t, bob, "bogus", nil)
	var protoErr models.ErrorEvent
	require.NoError(t, json.Unmarshal(readEvent(t, bob, EventError), &protoErr))
	assert.Equal(t, CodeUnknownEvent, protoErr.Code)

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	var left memberEvent
	require.NoError(t, json.Unmarshal(readEvent(t, alice, EventUserLeft), &left))
	assert.Equal(t, "b", left.User.ID)
}
