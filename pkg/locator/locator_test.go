package locator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nearacct/acctsync/pkg/balance"
	"github.com/nearacct/acctsync/pkg/cache"
	"github.com/nearacct/acctsync/pkg/model"
	"github.com/nearacct/acctsync/pkg/nearrpc"
	"github.com/nearacct/acctsync/pkg/rpcgateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jrpcRequest struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

type jrpcError struct {
	Message string `json:"message"`
}

type queryParams struct {
	RequestType string          `json:"request_type"`
	AccountID   string          `json:"account_id"`
	MethodName  string          `json:"method_name"`
	BlockID     json.RawMessage `json:"block_id"`
}

func (p queryParams) height(t *testing.T) uint64 {
	t.Helper()
	var h uint64
	require.NoError(t, json.Unmarshal(p.BlockID, &h))
	return h
}

func rawResultBytes(jsonText string) json.RawMessage {
	data := []byte(jsonText)
	nums := make([]int, len(data))
	for i, b := range data {
		nums[i] = int(b)
	}
	encoded, _ := json.Marshal(nums)
	return json.RawMessage(encoded)
}

// stepFunc returns before for block < changeBlock and after otherwise,
// modeling a single balance-changing event at an exact block height.
type stepFunc func(block uint64) string

// newStepServer builds a fake node whose native balance and, if
// ftStep/intentsStep are non-nil, FT/intents balances, each follow an
// independent step function of the queried block height.
func newStepServer(t *testing.T, nativeStep stepFunc, ftStep stepFunc, intentsStep stepFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jrpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "query":
			var p queryParams
			require.NoError(t, json.Unmarshal(req.Params, &p))
			block := p.height(t)

			switch p.RequestType {
			case "view_account":
				amount := "0"
				if nativeStep != nil {
					amount = nativeStep(block)
				}
				resp["result"] = &nearrpc.ViewAccountResult{Amount: amount, Locked: "0"}
			case "call_function":
				switch p.MethodName {
				case "ft_balance_of":
					amount := "0"
					if ftStep != nil {
						amount = ftStep(block)
					}
					resp["result"] = map[string]interface{}{"result": rawResultBytes(strconv.Quote(amount))}
				case "mt_batch_balance_of":
					amount := "0"
					if intentsStep != nil {
						amount = intentsStep(block)
					}
					resp["result"] = map[string]interface{}{"result": rawResultBytes(`["` + amount + `"]`)}
				default:
					resp["error"] = &jrpcError{Message: "method " + p.MethodName + " not found"}
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestLocator(t *testing.T, server *httptest.Server) *Locator {
	t.Helper()
	client, err := nearrpc.NewClient(&nearrpc.Config{Endpoint: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	gw := rpcgateway.New(client, nil, &rpcgateway.Config{PacingDelay: time.Millisecond, MaxMissingBlockRetries: 3, RequestTimeout: 5 * time.Second}, nil)
	oracle := balance.New(gw, &cache.Config{MaxSize: 1000, DefaultTTL: time.Minute}, nil)
	return New(oracle, nil)
}

func stepAt(changeBlock uint64, before, after string) stepFunc {
	return func(block uint64) string {
		if block < changeBlock {
			return before
		}
		return after
	}
}

func TestFindLatestChangeNoChange(t *testing.T) {
	server := newStepServer(t, func(uint64) string { return "1000" }, nil, nil)
	defer server.Close()

	loc := newTestLocator(t, server)
	result, err := loc.FindLatestChange(context.Background(), "arizcredits.near", 161048660, 161048668, model.Keyset{})
	require.NoError(t, err)
	assert.False(t, result.HasChanges)
}

func TestFindLatestChangeLocatesNativeTransfer(t *testing.T) {
	const changeBlock = 161048664
	server := newStepServer(t, stepAt(changeBlock, "1000000000000000000000000", "1500000000000000000000000"), nil, nil)
	defer server.Close()

	loc := newTestLocator(t, server)
	result, err := loc.FindLatestChange(context.Background(), "arizcredits.near", changeBlock-4, changeBlock+4, model.Keyset{})
	require.NoError(t, err)
	require.True(t, result.HasChanges)
	assert.EqualValues(t, changeBlock, result.Block)
	assert.True(t, result.NativeChanged)
	assert.Empty(t, result.TokensChanged)
}

func TestFindLatestChangeLocatesFungibleTokenCredit(t *testing.T) {
	const changeBlock = 151391583
	server := newStepServer(t, func(uint64) string { return "0" }, stepAt(changeBlock, "0", "250000000"), nil)
	defer server.Close()

	loc := newTestLocator(t, server)
	keyset := model.Keyset{FungibleTokens: []string{"arizcredits.near"}}
	result, err := loc.FindLatestChange(context.Background(), "webassemblymusic-treasury.sputnik-dao.near", changeBlock-4, changeBlock+4, keyset)
	require.NoError(t, err)
	require.True(t, result.HasChanges)
	assert.EqualValues(t, changeBlock, result.Block)
	assert.False(t, result.NativeChanged)
	require.Contains(t, result.TokensChanged, "arizcredits.near")
	assert.Equal(t, "+250000000", result.TokensChanged["arizcredits.near"].Diff)
}

func TestFindLatestChangeLocatesIntentsDebit(t *testing.T) {
	const changeBlock = 151391586
	server := newStepServer(t, func(uint64) string { return "0" }, nil, stepAt(changeBlock, "500000", "100000"))
	defer server.Close()

	loc := newTestLocator(t, server)
	keyset := model.Keyset{IntentsTokens: []string{"nep245:wrap.near"}}
	result, err := loc.FindLatestChange(context.Background(), "webassemblymusic-treasury.sputnik-dao.near", changeBlock-4, changeBlock+4, keyset)
	require.NoError(t, err)
	require.True(t, result.HasChanges)
	assert.EqualValues(t, changeBlock, result.Block)
	require.Contains(t, result.IntentsChanged, "nep245:wrap.near")
	assert.Equal(t, "-400000", result.IntentsChanged["nep245:wrap.near"].Diff)
}

func TestFindLatestChangeRejectsInvertedRange(t *testing.T) {
	server := newStepServer(t, func(uint64) string { return "0" }, nil, nil)
	defer server.Close()

	loc := newTestLocator(t, server)
	_, err := loc.FindLatestChange(context.Background(), "arizcredits.near", 200, 100, model.Keyset{})
	require.ErrorIs(t, err, ErrInvalidRange)
}
