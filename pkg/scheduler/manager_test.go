package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nearacct/acctsync/pkg/ledger"
	"github.com/nearacct/acctsync/pkg/registry"
	"github.com/nearacct/acctsync/pkg/tokenset"
	"github.com/stretchr/testify/require"
)

func newFullTestPipeline(t *testing.T, server *httptest.Server, metaStore *ledger.MetadataStore) *Pipeline {
	t.Helper()
	gw, oracle, loc, attr := newStack(t, server)
	store, err := ledger.New(t.TempDir(), nil)
	require.NoError(t, err)
	discoverer := tokenset.New(nil, nil, nil)
	return NewPipeline(gw, oracle, loc, attr, discoverer, store, metaStore, DefaultConfig(), nil)
}

// newCountingFakeNode answers just enough of the RPC surface for a
// full Pipeline.Run to complete (status for the chain tip, a constant
// native balance so the Change Locator finds nothing to attribute),
// while tracking how many requests are in flight at once so the test
// can assert the Manager never drives two accounts' RPC traffic
// concurrently.
func newCountingFakeNode(t *testing.T, inflight, maxInflight *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(inflight, 1)
		for {
			cur := atomic.LoadInt32(maxInflight)
			if n <= cur || atomic.CompareAndSwapInt32(maxInflight, cur, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		defer atomic.AddInt32(inflight, -1)

		var req jrpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}

		switch req.Method {
		case "status":
			resp["result"] = map[string]interface{}{
				"sync_info": map[string]interface{}{"latest_block_height": 5, "latest_block_hash": "h"},
			}
		case "query":
			var p queryParams
			require.NoError(t, json.Unmarshal(req.Params, &p))
			if p.RequestType == "view_account" {
				resp["result"] = map[string]interface{}{"amount": "0", "locked": "0"}
			} else {
				resp["error"] = &jrpcError{Message: "method " + p.MethodName + " not found"}
			}
		default:
			resp["error"] = &jrpcError{Message: "method " + req.Method + " not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRunCycleProcessesAccountsSequentially(t *testing.T) {
	var inflight, maxInflight int32
	server := newCountingFakeNode(t, &inflight, &maxInflight)
	defer server.Close()

	metaStore, err := ledger.NewMetadataStore(ledger.DefaultMetadataConfig(filepath.Join(t.TempDir(), "meta")), nil)
	require.NoError(t, err)
	defer metaStore.Close()

	p := newFullTestPipeline(t, server, metaStore)

	reg, err := registry.New(nil, nil)
	require.NoError(t, err)
	for _, account := range []string{"arizcredits.near", "astro-stakers.poolv1.near", "webassemblymusic-treasury.sputnik-dao.near"} {
		require.NoError(t, reg.Register(account, time.Time{}))
	}

	cfg := DefaultConfig()
	cfg.AccountTimeout = 10 * time.Second
	manager, err := NewManager(cfg, reg, p, nil)
	require.NoError(t, err)

	manager.runCycle(context.Background())

	require.LessOrEqual(t, maxInflight, int32(1),
		"Manager must never have more than one account's RPC calls in flight at a time")
}
