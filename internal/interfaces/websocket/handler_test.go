package websocket

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
	"github.com/stretchr/testify/require"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

func newServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.NewNop())
	router := gin.New()
	InitWebSocketRouter(logger.NewNop(), h, hub.WebSocketOptions{}, router.Group(""))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConnect(t *testing.T) {
	for _, path := range []string{"/ws", "/"} {
		t.Run(path, func(t *testing.T) {
			h, base := newServer(t)

			conn, _, err := websocket.DefaultDialer.Dial(base+path, nil)
			require.NoError(t, err)
			defer conn.Close()

			welcome := readJSON(t, conn)
			assert.Equal(t, "connection", welcome["type"])
			data := welcome["data"].(map[string]any)
			assert.Equal(t, "Connected to notification service", data["message"])
			clientID := data["clientId"].(string)

			require.Eventually(t, func() bool { return h.Stats().ConnectionCount == 1 }, time.Second, 10*time.Millisecond)
			assert.Equal(t, clientID, h.Connections()[0].ID)

			require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
			pong := readJSON(t, conn)
			assert.Equal(t, "pong", pong["type"])
			assert.Greater(t, pong["data"].(map[string]any)["timestamp"].(float64), float64(0))

			require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "room": "devices"}))
			require.Eventually(t, func() bool { return h.Stats().SubscriptionCount == 1 }, time.Second, 10*time.Millisecond)

			conn.Close()
			assert.Eventually(t, func() bool { return h.Stats().ConnectionCount == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestConnect_BroadcastReachesEveryClient(t *testing.T) {
	h, base := newServer(t)

	var clients []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
		require.NoError(t, err)
		defer conn.Close()
		readJSON(t, conn)
		clients = append(clients, conn)
	}
	require.Eventually(t, func() bool { return h.Stats().ConnectionCount == 3 }, time.Second, 10*time.Millisecond)

	data := json.RawMessage(`{"type":"alert","message":"hi"}`)
	assert.Equal(t, 3, h.Broadcast(&hub.OutboundEvent{Type: hub.EventNotificationSent, Data: data}))

	for _, conn := range clients {
		msg := readJSON(t, conn)
		assert.Equal(t, "notification:sent", msg["type"])
		assert.Equal(t, "hi", msg["data"].(map[string]any)["message"])
	}
}

func TestConnect_RejectsPlainHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := hub.New(logger.NewNop())
	router := gin.New()
	InitWebSocketRouter(logger.NewNop(), h, hub.WebSocketOptions{}, router.Group(""))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, h.Stats().ConnectionCount)
}
