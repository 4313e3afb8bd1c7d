package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
)

func setup(t *testing.T) (*broadcast.Bus, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := broadcast.NewBus()
	metrics := monitoring.NewMetrics()
	router := gin.New()
	router.GET("/ws", NewHandler(bus, nil, metrics).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		bus.Close()
		metrics.Close()
	})
	return bus, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, "system", read(t, conn).Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func write(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestStreamsFilteredBroadcasts(t *testing.T) {
	bus, url := setup(t)
	conn := dial(t, url+"?action="+string(broadcast.ActionPackageAdded)+"&package=com.example.app")

	bus.Publish(
		broadcast.Broadcast{Action: broadcast.ActionPackageRemoved, PackageName: "com.example.app"},
		broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: "com.other"},
		broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: "com.example.app", UserID: 10},
	)

	msg := read(t, conn)
	assert.Equal(t, "broadcast", msg.Type)
	require.NotNil(t, msg.Broadcast)
	assert.Equal(t, broadcast.ActionPackageAdded, msg.Broadcast.Action)
	assert.Equal(t, "com.example.app", msg.Broadcast.PackageName)
	assert.Equal(t, 10, msg.Broadcast.UserID)
}

func TestPingAndUnknownMessages(t *testing.T) {
	_, url := setup(t)
	conn := dial(t, url)

	write(t, conn, Message{Type: "ping"})
	assert.Equal(t, "pong", read(t, conn).Type)

	write(t, conn, Message{Type: "bogus"})
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown message type", msg.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "invalid message", read(t, conn).Message)
}

func TestSubscribeReplacesFilter(t *testing.T) {
	bus, url := setup(t)
	conn := dial(t, url+"?package=com.first")

	write(t, conn, Message{Type: "subscribe", Package: "com.second"})
	assert.Equal(t, "subscribed", read(t, conn).Type)

	bus.Publish(
		broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: "com.first"},
		broadcast.Broadcast{Action: broadcast.ActionPackageAdded, PackageName: "com.second"},
	)

	msg := read(t, conn)
	require.NotNil(t, msg.Broadcast)
	assert.Equal(t, "com.second", msg.Broadcast.PackageName)
}

func TestFilterFor(t *testing.T) {
	added := broadcast.Broadcast{Action: broadcast.ActionUnarchivePackage, PackageName: "com.app", Target: "com.store"}

	tests := []struct {
		name    string
		actions []string
		pkg     string
		target  string
		want    bool
	}{
		{"no filter", nil, "", "", true},
		{"action match", []string{string(broadcast.ActionUnarchivePackage)}, "", "", true},
		{"action miss", []string{string(broadcast.ActionPackageAdded)}, "", "", false},
		{"package miss", nil, "com.other", "", false},
		{"target match", nil, "com.app", "com.store", true},
		{"target miss", nil, "", "com.other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := filterFor(tt.actions, tt.pkg, tt.target)
			if f == nil {
				assert.True(t, tt.want)
				return
			}
			assert.Equal(t, tt.want, f(added))
		})
	}
}
