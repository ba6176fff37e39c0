package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/bravo_premium_server/internal/pkg/pubsub"
)

// newConnPair 建立一对真实的 websocket 连接，返回服务端和客户端
func newConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverConn := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConn:
		t.Cleanup(func() { conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timed out")
		return nil, nil
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	server, _ := newConnPair(t)

	c1 := &Client{UserID: 1, Conn: server}
	c2 := &Client{UserID: 1, Conn: server}

	hub.Register(c1)
	hub.Register(c2)
	assert.True(t, hub.IsOnline(1))
	assert.Equal(t, 2, hub.ConnectionCount())

	hub.Unregister(c1)
	assert.True(t, hub.IsOnline(1))

	hub.Unregister(c2)
	assert.False(t, hub.IsOnline(1))
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_NotifyEntitlementChanged(t *testing.T) {
	hub := NewHub()
	server, client := newConnPair(t)
	hub.Register(&Client{UserID: 7, Conn: server})

	hub.NotifyEntitlementChanged(&pubsub.EntitlementChanged{
		Type:   "entitlement_changed",
		UserID: 7,
		Status: "premium",
		Reason: pubsub.ReasonPurchase,
	})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string                    `json:"type"`
		Data pubsub.EntitlementChanged `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "entitlement_changed", msg.Type)
	assert.Equal(t, "premium", msg.Data.Status)
}

func TestHub_ActsAsLocalPublisher(t *testing.T) {
	hub := NewHub()
	server, client := newConnPair(t)
	hub.Register(&Client{UserID: 8, Conn: server})

	var publisher pubsub.EventPublisher = hub
	err := publisher.PublishEntitlementChanged(context.Background(), &pubsub.EntitlementChanged{
		Type:   "entitlement_changed",
		UserID: 8,
		Status: "expired",
		Reason: pubsub.ReasonCancel,
	})
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string                    `json:"type"`
		Data pubsub.EntitlementChanged `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "expired", msg.Data.Status)
	assert.Equal(t, int64(8), msg.Data.UserID)
}

func TestHub_SendToOfflineUser(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.SendToUser(404, &Message{Type: "noop"}))
}
