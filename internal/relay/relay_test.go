package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskagent/core/internal/events"
	"github.com/deskagent/core/pkg/models"
)

func TestEventsEndpointRelaysEnvelope(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	srv := New("127.0.0.1:0", bus, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Allow the server-side subscription to register before emitting.
	time.Sleep(50 * time.Millisecond)
	bus.Emit(models.EventRoundStarted, models.RoundStartedPayload{Intent: "Fill login", Iteration: 2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var envelope struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Type != "round_started" {
		t.Errorf("type = %q", envelope.Type)
	}
	if envelope.Timestamp == 0 {
		t.Error("timestamp missing")
	}
	var data models.RoundStartedPayload
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Intent != "Fill login" || data.Iteration != 2 {
		t.Errorf("data = %+v", data)
	}
}
