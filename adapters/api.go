package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/telemetry"
)

// APICommunication is the --mode api Communication capability: an
// in-process channel->message queue exposed over HTTP, wrapped in the
// teacher's OTel HTTP tracing middleware (telemetry.TracingMiddleware)
// so every inbound request gets a span the way the rest of the agent
// core does.
type APICommunication struct {
	mu       sync.Mutex
	channels map[string][]Message
	server   *http.Server
}

func NewAPICommunication() *APICommunication {
	return &APICommunication{channels: make(map[string][]Message)}
}

func (a *APICommunication) SendMessage(ctx context.Context, channel, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[channel] = append(a.channels[channel], Message{
		ID: uuid.NewString(), Channel: channel, Author: "agent", Content: content, Timestamp: time.Now().UTC(),
	})
	return nil
}

func (a *APICommunication) FetchMessages(ctx context.Context, channel string, limit int) ([]Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := a.channels[channel]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	start := len(msgs) - limit
	out := make([]Message, limit)
	copy(out, msgs[start:])
	return out, nil
}

func (a *APICommunication) GetDefaultChannel() string { return "api" }

// Serve starts the HTTP surface: GET/POST /channels/{name}/messages.
// The returned server is not started with ListenAndServe by this
// method -- the caller decides sync vs background, matching how the
// teacher's cmd entrypoints own their own server lifecycle.
func (a *APICommunication) Serve(host string, port int, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/", func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Path[len("/channels/"):]
		const suffix = "/messages"
		if len(channel) <= len(suffix) || channel[len(channel)-len(suffix):] != suffix {
			http.NotFound(w, r)
			return
		}
		channel = channel[:len(channel)-len(suffix)]

		switch r.Method {
		case http.MethodPost:
			var body struct{ Content string `json:"content"` }
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := a.SendMessage(r.Context(), channel, body.Content); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			msgs, err := a.FetchMessages(r.Context(), channel, 50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(msgs)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	handler := telemetry.TracingMiddleware("ciris-api")(mux)
	a.server = &http.Server{Addr: addr(host, port), Handler: handler}
	return a.server
}

func addr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	if port == 0 {
		port = 8080
	}
	return host + ":" + strconv.Itoa(port)
}
