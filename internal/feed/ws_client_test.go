package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pnf-signal-lab/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testConfig() *ClientConfig {
	return &ClientConfig{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		PingInterval:      time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func candleMsg(inst string, ts int64, closed *bool) map[string]interface{} {
	c := map[string]interface{}{
		"instrument_id": inst,
		"timestamp":     ts,
		"open":          100.0,
		"high":          101.0,
		"low":           99.0,
		"close":         100.5,
		"volume":        10.0,
	}
	if closed != nil {
		c["closed"] = *closed
	}
	return c
}

// collect runs the client until n candles arrived or the deadline passes.
func collect(t *testing.T, client *Client, n int) []*domain.Candle {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *domain.Candle)
	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx, out) }()

	var got []*domain.Candle
	for len(got) < n {
		select {
		case c := <-out:
			got = append(got, c)
		case <-ctx.Done():
			t.Fatalf("timed out with %d of %d candles", len(got), n)
		}
	}
	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Errorf("expected context.Canceled from Run, got %v", err)
	}
	return got
}

func TestClient_SubscribeAndStream(t *testing.T) {
	var subscribed atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed.Store(req)

		open := false
		conn.WriteJSON(map[string]interface{}{"type": "heartbeat"})
		conn.WriteJSON(map[string]interface{}{"type": "candle", "candle": candleMsg("BTC", 60_000, &open)})
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(map[string]interface{}{"type": "candle", "candle": candleMsg("", 60_000, nil)})
		conn.WriteJSON(map[string]interface{}{"type": "candle", "candle": candleMsg("BTC", 60_000, nil)})
		conn.WriteJSON(map[string]interface{}{"type": "candles", "candles": []interface{}{
			candleMsg("BTC", 120_000, nil),
			candleMsg("ETH", 120_000, nil),
		}})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewClient(wsURL(server), []string{"BTC", "ETH"}, testConfig(), nil)
	got := collect(t, client, 3)

	req, _ := subscribed.Load().(subscribeRequest)
	if req.Op != "subscribe" || len(req.Instruments) != 2 {
		t.Errorf("unexpected subscribe request: %+v", req)
	}
	if got[0].InstrumentID != "BTC" || got[0].Timestamp != 60_000 || got[0].Close != 100.5 {
		t.Errorf("unexpected first candle: %+v", got[0])
	}
	if got[1].Timestamp != 120_000 || got[2].InstrumentID != "ETH" {
		t.Errorf("unexpected batch: %+v %+v", got[1], got[2])
	}
}

func TestClient_Reconnects(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(map[string]interface{}{"type": "candle", "candle": candleMsg("BTC", int64(n)*60_000, nil)})
		if n == 1 {
			// drop the first connection
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewClient(wsURL(server), nil, testConfig(), nil)
	got := collect(t, client, 2)

	if got[0].Timestamp != 60_000 || got[1].Timestamp != 120_000 {
		t.Errorf("unexpected candles across reconnect: %d, %d", got[0].Timestamp, got[1].Timestamp)
	}
	if connections.Load() < 2 {
		t.Errorf("expected a reconnect, got %d connections", connections.Load())
	}
}

func TestClient_DialFailureStopsOnCancel(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/feed", nil, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Run(ctx, make(chan *domain.Candle))
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestHandleMessage(t *testing.T) {
	client := NewClient("ws://unused", nil, nil, nil)

	msg, _ := json.Marshal(map[string]interface{}{"type": "candles", "candles": []interface{}{
		candleMsg("BTC", 60_000, nil),
		map[string]interface{}{"instrument_id": "BTC", "timestamp": 120_000, "open": 1, "high": 0.5, "low": 1, "close": 1},
	}})
	got, err := client.handleMessage(msg)
	if err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected the inconsistent candle to be dropped, got %d", len(got))
	}

	if _, err := client.handleMessage([]byte(`{"type":"candle"}`)); err == nil {
		t.Error("expected error for candle message without payload")
	}
	if got, err := client.handleMessage([]byte(`{"type":"error","message":"slow down"}`)); err != nil || got != nil {
		t.Errorf("error messages are logged and ignored, got %v %v", got, err)
	}
}
