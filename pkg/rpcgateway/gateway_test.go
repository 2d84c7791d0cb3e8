package rpcgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/nearrpc"
	"github.com/stretchr/testify/require"
)

type jrpcRequest struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

type jrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type methodHandler func(params json.RawMessage) (json.RawMessage, *jrpcError)

func newMockRPCServer(t *testing.T, handlers map[string]methodHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jrpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		handler, ok := handlers[req.Method]
		if !ok {
			handler = handlers["*"]
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if handler != nil {
			result, rpcErr := handler(req.Params)
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestGateway(t *testing.T, server *httptest.Server) *Gateway {
	t.Helper()
	client, err := nearrpc.NewClient(&nearrpc.Config{Endpoint: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return New(client, nil, &Config{PacingDelay: time.Millisecond, MaxMissingBlockRetries: 3, RequestTimeout: 5 * time.Second}, nil)
}

func TestCurrentBlockHeight(t *testing.T) {
	server := newMockRPCServer(t, map[string]methodHandler{
		"status": func(params json.RawMessage) (json.RawMessage, *jrpcError) {
			return json.RawMessage(`{"sync_info":{"latest_block_height":12345,"latest_block_hash":"abc"}}`), nil
		},
	})
	defer server.Close()

	gw := newTestGateway(t, server)
	height, err := gw.CurrentBlockHeight(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 12345, height)
}

func TestViewAccountMissingAccountIsNormalized(t *testing.T) {
	server := newMockRPCServer(t, map[string]methodHandler{
		"query": func(params json.RawMessage) (json.RawMessage, *jrpcError) {
			return nil, &jrpcError{Code: -32000, Message: "account nobody.near does not exist while viewing"}
		},
	})
	defer server.Close()

	gw := newTestGateway(t, server)
	outcome, err := gw.ViewAccount(context.Background(), "nobody.near", 100)
	require.NoError(t, err)
	require.True(t, outcome.Missing)
}

func TestViewAccountRetriesPastMissingBlock(t *testing.T) {
	calls := 0
	server := newMockRPCServer(t, map[string]methodHandler{
		"query": func(params json.RawMessage) (json.RawMessage, *jrpcError) {
			calls++
			if calls == 1 {
				return nil, &jrpcError{Code: -32000, Message: "block unavailable: garbage collected"}
			}
			return json.RawMessage(`{"amount":"1000","locked":"0","code_hash":"","block_height":99,"block_hash":"x"}`), nil
		},
	})
	defer server.Close()

	gw := newTestGateway(t, server)
	outcome, err := gw.ViewAccount(context.Background(), "someone.near", 100)
	require.NoError(t, err)
	require.False(t, outcome.Missing)
	require.Equal(t, "1000", outcome.Amount)
	require.Equal(t, 2, calls)
}

func TestRateLimitTripsStopSignalAndPublishesEvent(t *testing.T) {
	server := newMockRPCServer(t, map[string]methodHandler{
		"status": func(params json.RawMessage) (json.RawMessage, *jrpcError) {
			return nil, &jrpcError{Code: 429, Message: "too many requests"}
		},
	})
	defer server.Close()

	gw := newTestGateway(t, server)
	pub := &fakePublisher{}
	gw.SetEventBus(pub)

	_, err := gw.CurrentBlockHeight(context.Background())
	require.ErrorIs(t, err, ErrRateLimit)
	require.True(t, gw.StopSignalSet())

	require.Len(t, pub.events, 1)
	rl, ok := pub.events[0].(*events.RateLimitedEvent)
	require.True(t, ok)
	require.Equal(t, "CurrentBlockHeight", rl.Method)

	gw.ClearStopSignal()
	require.False(t, gw.StopSignalSet())
}

func TestStopSignalFailsFastWithoutCallingServer(t *testing.T) {
	hits := 0
	server := newMockRPCServer(t, map[string]methodHandler{
		"*": func(params json.RawMessage) (json.RawMessage, *jrpcError) {
			hits++
			return json.RawMessage(`{}`), nil
		},
	})
	defer server.Close()

	gw := newTestGateway(t, server)
	gw.stopSignal.Store(true)

	_, err := gw.CurrentBlockHeight(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	require.Zero(t, hits)
}

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(event events.Event) bool {
	f.events = append(f.events, event)
	return true
}
