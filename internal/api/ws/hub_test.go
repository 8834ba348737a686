package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_FiltersByKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	jane := dial(t, srv, "?key=jane_doe.jpg")
	all := dial(t, srv, "")

	// Registration is asynchronous; give the hub a moment.
	time.Sleep(50 * time.Millisecond)

	hub.BroadcastStatus(models.IndexingStatus{Key: "john_roe.jpg", State: models.IndexingIndexed, FaceID: "F2"})
	hub.BroadcastStatus(models.IndexingStatus{Key: "jane_doe.jpg", State: models.IndexingIndexed, FaceID: "F1"})

	read := func(conn *websocket.Conn) dto.WSEvent {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt dto.WSEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return evt
	}

	if evt := read(jane); evt.Key != "jane_doe.jpg" || evt.Type != "enrollment.indexed" || evt.FaceID != "F1" {
		t.Errorf("filtered client got %+v", evt)
	}
	if evt := read(all); evt.Key != "john_roe.jpg" {
		t.Errorf("unfiltered client first event = %+v", evt)
	}
	if evt := read(all); evt.Key != "jane_doe.jpg" {
		t.Errorf("unfiltered client second event = %+v", evt)
	}
}
