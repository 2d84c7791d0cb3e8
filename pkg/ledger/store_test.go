package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nearacct/acctsync/internal/testutil"
	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/model"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(event events.Event) bool {
	f.events = append(f.events, event)
	return true
}

func TestLoadReturnsFreshHistoryWhenNoFileExists(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	history, err := store.Load("webassemblymusic-treasury.sputnik-dao.near")
	require.NoError(t, err)
	require.Empty(t, history.Transactions)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	history := model.NewAccountHistory("arizcredits.near", time.Now())
	entry := testutil.NewTestEntry(100, "500")
	entry.BalanceBefore = &model.BalanceSnapshot{Native: ptrAmount(model.ZeroAmount())}
	store.Insert(history, entry)
	require.NoError(t, store.Save(history))

	reloaded, err := store.Load("arizcredits.near")
	require.NoError(t, err)
	require.Len(t, reloaded.Transactions, 1)
	require.Equal(t, uint64(100), reloaded.Transactions[0].Block)
}

func TestLoadOnCorruptFilePublishesLedgerCorruptEvent(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, nil)
	require.NoError(t, err)

	pub := &fakePublisher{}
	store.SetEventBus(pub)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "astro-stakers.poolv1.near.json"), []byte("{not valid json"), 0o644))

	_, err = store.Load("astro-stakers.poolv1.near")
	require.Error(t, err)
	require.True(t, errors.Is(err, model.ErrLedgerCorrupt))

	require.Len(t, pub.events, 1)
	corrupt, ok := pub.events[0].(*events.LedgerCorruptEvent)
	require.True(t, ok)
	require.Equal(t, "astro-stakers.poolv1.near", corrupt.AccountID)
}

func TestInsertMaintainsBlockOrderAndIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	history := model.NewAccountHistory("webassemblymusic-treasury.sputnik-dao.near", time.Now())
	store.Insert(history, model.LedgerEntry{Block: 300})
	store.Insert(history, model.LedgerEntry{Block: 100})
	store.Insert(history, model.LedgerEntry{Block: 200})

	require.Len(t, history.Transactions, 3)
	require.Equal(t, uint64(100), history.Transactions[0].Block)
	require.Equal(t, uint64(200), history.Transactions[1].Block)
	require.Equal(t, uint64(300), history.Transactions[2].Block)

	// Re-inserting the same block replaces rather than duplicates.
	store.Insert(history, model.LedgerEntry{Block: 200, TransactionBlock: 201})
	require.Len(t, history.Transactions, 3)
	require.Equal(t, uint64(201), history.Transactions[1].TransactionBlock)
}

func TestVerifySyntheticEntriesAlwaysPass(t *testing.T) {
	synthetic := &model.LedgerEntry{
		Block: 1,
		Changes: model.Changes{
			StakingChanged: map[string]model.FieldDiff{"astro-stakers.poolv1.near": {}},
		},
	}
	result := Verify(synthetic, synthetic)
	require.True(t, result.Verified)
}

func ptrAmount(a model.Amount) *model.Amount {
	return &a
}
