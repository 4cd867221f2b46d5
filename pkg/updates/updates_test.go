package updates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

func newJournal(t *testing.T) (*Journal, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewJournal(store), store
}

func openUpdate(t *testing.T, j *Journal) *types.Update {
	t.Helper()
	u := &types.Update{
		ID:        storage.NewID(),
		Operation: types.OpDeploy,
		Target:    types.ResourceTarget{Type: types.KindDeployment, ID: "d1"},
		Operator:  "u1",
		StartTS:   time.Now(),
	}
	require.NoError(t, j.Open(u))
	return u
}

func TestOpenPersistsInProgress(t *testing.T) {
	j, store := newJournal(t)
	u := openUpdate(t, j)

	got, err := store.GetUpdate(u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UpdateInProgress, got.Status)
	assert.False(t, got.Success)
}

func TestPushFlushesLogs(t *testing.T) {
	j, store := newJournal(t)
	u := openUpdate(t, j)

	u.PushLog(types.SimpleLog("Stage One", "done"))
	j.Push(u)

	got, err := store.GetUpdate(u.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, types.UpdateInProgress, got.Status)
}

func TestFinalizePersistsOutcome(t *testing.T) {
	j, store := newJournal(t)
	u := openUpdate(t, j)

	u.PushError("Deploy", assert.AnError)
	j.Finalize(u)

	got, err := store.GetUpdate(u.ID)
	require.NoError(t, err)
	assert.Equal(t, types.UpdateComplete, got.Status)
	assert.False(t, got.Success)
	assert.False(t, got.EndTS.IsZero())
}

func TestSubscribersReceiveEveryWrite(t *testing.T) {
	j, _ := newJournal(t)
	sub := j.Subscribe()
	defer j.Unsubscribe(sub)

	u := openUpdate(t, j)
	u.PushLog(types.SimpleLog("Stage", "ok"))
	j.Push(u)
	j.Finalize(u)

	var statuses []types.UpdateStatus
	for i := 0; i < 3; i++ {
		select {
		case got := <-sub:
			statuses = append(statuses, got.Status)
		case <-time.After(time.Second):
			t.Fatal("missing broadcast")
		}
	}
	assert.Equal(t, []types.UpdateStatus{
		types.UpdateInProgress,
		types.UpdateInProgress,
		types.UpdateComplete,
	}, statuses)
}

func TestBroadcastCopiesLogs(t *testing.T) {
	j, _ := newJournal(t)
	sub := j.Subscribe()
	defer j.Unsubscribe(sub)

	u := openUpdate(t, j)
	u.PushLog(types.SimpleLog("Stage", "ok"))
	j.Push(u)

	<-sub // open broadcast
	got := <-sub

	// Mutating the live row must not affect the delivered copy.
	u.Logs[0].Stdout = "mutated"
	assert.Equal(t, "ok", got.Logs[0].Stdout)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	j, _ := newJournal(t)
	sub := j.Subscribe()
	j.Unsubscribe(sub)
	j.Unsubscribe(sub)

	// A write after unsubscribe must not panic on the closed channel.
	openUpdate(t, j)
}
