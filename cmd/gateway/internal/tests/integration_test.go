package tests

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket" // test client only; the server uses gobwas
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/api"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-ratio/internal/chart"
)

const rowJSON = `{"price_abc":109,"price_def":100,"ratio":1.09,"timestamp":"2024-01-02T15:04:05Z","upper_bound":1.05,"lower_bound":0.95,"trigger_alert":1.09}`

func startServer(t *testing.T) (*httptest.Server, *miniredis.Miniredis, *chart.Table) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := repository.NewRedisStore(rdb)
	wsHub := hub.NewHub(repo, zap.NewNop(), []string{"ABC", "DEF", "ratio"})

	table := chart.NewTable(100)
	if err := wsHub.Watch("ratio", func(p string) { _ = table.IngestJSON([]byte(p)) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	handler := api.NewHandler(wsHub, table, api.Bounds{
		InstrumentA: "ABC", InstrumentB: "DEF", UpperBound: 1.05, LowerBound: 0.95,
	}, zap.NewNop())
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(func() { wsHub.Shutdown() })

	return server, mr, table
}

func connectWS(t *testing.T, serverURL string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	return wsConn
}

// publishUntil republishes until cond holds; the upstream SUBSCRIBE is async
func publishUntil(mr *miniredis.Miniredis, channel, payload string, cond func() bool) bool {
	for i := 0; i < 20; i++ {
		mr.Publish(channel, payload)
		time.Sleep(50 * time.Millisecond)
		if cond() {
			return true
		}
	}
	return false
}

func TestEndToEnd_FullFlow(t *testing.T) {
	server, mr, _ := startServer(t)
	defer server.Close()

	wsConn := connectWS(t, server.URL)
	defer wsConn.Close()

	subMsg := `{"action": "subscribe", "payload": {"topics": ["ratio"]}, "id": "t1"}`
	wsConn.WriteMessage(websocket.TextMessage, []byte(subMsg))

	_, msg, _ := wsConn.ReadMessage()
	if !strings.Contains(string(msg), "success") {
		t.Errorf("Expected subscription success, got: %s", msg)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		mr.Publish("feed.ratio", rowJSON)
	}()

	wsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := wsConn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to receive broadcast: %v", err)
	}
	if !strings.Contains(string(msg), `"trigger_alert":1.09`) {
		t.Errorf("Expected alerting row, got: %s", msg)
	}

	unsubMsg := `{"action": "unsubscribe", "payload": {"topics": ["ratio"]}, "id": "t2"}`
	wsConn.WriteMessage(websocket.TextMessage, []byte(unsubMsg))

	_, msg, _ = wsConn.ReadMessage()
	if !strings.Contains(string(msg), "Unsubscribed") {
		t.Errorf("Expected unsubscribe ack, got: %s", msg)
	}
}

func TestEndToEnd_RowsEndpoint(t *testing.T) {
	server, mr, table := startServer(t)
	defer server.Close()

	if !publishUntil(mr, "feed.ratio", rowJSON, func() bool { return table.Len() > 0 }) {
		t.Fatal("Row table was never fed from feed.ratio")
	}

	resp, err := http.Get(server.URL + "/api/v1/rows")
	if err != nil {
		t.Fatalf("GET rows: %v", err)
	}
	defer resp.Body.Close()

	var points []chart.Point
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		t.Fatalf("Decode rows: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected duplicates to collapse into one point, got %d", len(points))
	}
	if math.Abs(points[0].Ratio-1.09) > 1e-12 || points[0].TriggerAlert == nil {
		t.Errorf("Unexpected point %+v", points[0])
	}

	resp, err = http.Get(server.URL + "/api/v1/rows?since=yesterday")
	if err != nil {
		t.Fatalf("GET rows: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", resp.StatusCode)
	}
}

func TestEndToEnd_Bounds(t *testing.T) {
	server, _, _ := startServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/bounds")
	if err != nil {
		t.Fatalf("GET bounds: %v", err)
	}
	defer resp.Body.Close()

	var b api.Bounds
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("Decode bounds: %v", err)
	}
	if b.UpperBound+b.LowerBound != 2.0 {
		t.Errorf("Bounds should be symmetric around 1, got %+v", b)
	}
}

func TestEndToEnd_InvalidJSON(t *testing.T) {
	server, _, _ := startServer(t)
	defer server.Close()
	wsConn := connectWS(t, server.URL)
	defer wsConn.Close()

	wsConn.WriteMessage(websocket.TextMessage, []byte(`{ "action": "subsc`))

	_, msg, _ := wsConn.ReadMessage()
	if !strings.Contains(string(msg), "Invalid JSON") && !strings.Contains(string(msg), "error") {
		t.Errorf("Expected error message for bad JSON, got: %s", msg)
	}
}

func TestEndToEnd_MaxMessageSize(t *testing.T) {
	server, _, _ := startServer(t)
	defer server.Close()
	wsConn := connectWS(t, server.URL)
	defer wsConn.Close()

	hugePayload := strings.Repeat("a", 513*1024)
	hugeMsg := fmt.Sprintf(`{"action":"subscribe", "payload": {"topics": ["%s"]}}`, hugePayload)

	err := wsConn.WriteMessage(websocket.TextMessage, []byte(hugeMsg))
	// The write may succeed; the server must then drop the connection
	if err == nil {
		wsConn.SetReadDeadline(time.Now().Add(1 * time.Second))
		_, _, err := wsConn.ReadMessage()
		if err == nil {
			t.Error("Server should have closed connection for huge message, but it stayed open")
		}
	}
}
