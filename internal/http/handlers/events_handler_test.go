package handlers_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"streeteats/internal/http/handlers"
	httpmiddleware "streeteats/internal/http/middleware"
	"streeteats/internal/modules/notify"
)

func newEventsServer(t *testing.T, broker *notify.Broker) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewEventsHandler(broker, time.Hour, false)
	r.GET("/api/events/:room", httpmiddleware.TokenFromQuery(), httpmiddleware.Auth(stubTokenVerifier{}), h.Stream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// nextEvent reads SSE lines until an event frame completes and returns its name and data.
func nextEvent(t *testing.T, rd *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestStreamRelaysRoomEvents(t *testing.T) {
	broker := notify.NewBroker()
	srv := newEventsServer(t, broker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/customer-c1?token=customer:c1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	rd := bufio.NewReader(resp.Body)
	if name, _ := nextEvent(t, rd); name != "ready" {
		t.Fatalf("expected ready event, got %q", name)
	}

	payload, _ := json.Marshal(map[string]string{"orderId": "o1", "status": "accepted"})
	_ = broker.Send(ctx, notify.Envelope{ID: "e1", Room: "vendor-v1", Event: notify.EventStatusUpdated, Payload: payload})
	_ = broker.Send(ctx, notify.Envelope{ID: "e2", Room: "customer-c1", Event: notify.EventStatusUpdated, Payload: payload})

	name, data := nextEvent(t, rd)
	if name != notify.EventStatusUpdated {
		t.Fatalf("unexpected event %q", name)
	}
	var env notify.Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if env.ID != "e2" || env.Room != "customer-c1" {
		t.Fatalf("received another room's event: %+v", env)
	}
}

func TestStreamRoomOwnership(t *testing.T) {
	srv := newEventsServer(t, notify.NewBroker())
	cases := []struct {
		room, token string
		want        int
	}{
		{"vendor-v1", "customer:c1", http.StatusForbidden},
		{"customer-c2", "customer:c1", http.StatusForbidden},
		{"kitchen-1", "customer:c1", http.StatusBadRequest},
		{"customer-c1", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/events/"+tc.room, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.room, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s as %q: expected %d, got %d", tc.room, tc.token, tc.want, resp.StatusCode)
		}
	}
}
