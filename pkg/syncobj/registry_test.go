package syncobj

import (
	"errors"
	"sync"
	"testing"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	perm     models.PermissionClass
	messages []*models.SyncMessage
	fail     bool
}

func (f *fakeSubscriber) Permission() models.PermissionClass { return f.perm }

func (f *fakeSubscriber) SendSync(msg *models.SyncMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("send queue full")
	}

	f.messages = append(f.messages, msg)

	return nil
}

func (f *fakeSubscriber) replayed(t *testing.T) interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.messages)
	require.True(t, f.messages[0].First, "first message must be the snapshot")

	tree := f.messages[0].Data
	lastSeq := f.messages[0].Seq

	var err error

	for _, msg := range f.messages[1:] {
		require.Greater(t, msg.Seq, lastSeq, "sequence numbers must increase")
		lastSeq = msg.Seq

		tree, err = Apply(tree, msg.Patch)
		require.NoError(t, err)
	}

	return tree
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry(logger.NewTestLogger())
	require.NoError(t, r.Register("crosspoint", models.PermissionGlobal, map[string]interface{}{}))

	return r
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	r := newTestRegistry(t)
	sub := &fakeSubscriber{perm: models.PermissionGlobal}

	require.NoError(t, r.Subscribe("crosspoint", "obj-1", sub))
	require.Len(t, sub.messages, 1)
	assert.True(t, sub.messages[0].First)
	assert.Equal(t, "crosspoint", sub.messages[0].Channel)
	assert.Equal(t, "obj-1", sub.messages[0].ObjectID)
}

func TestPublishBroadcastsInOrder(t *testing.T) {
	r := newTestRegistry(t)
	sub := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", sub))

	for i := 0; i < 5; i++ {
		n := i
		require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
			return map[string]interface{}{"counter": n}
		}))
	}

	tree, seq, err := r.Snapshot("crosspoint")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
	assert.Equal(t, tree, sub.replayed(t))
}

func TestTwoSubscribersAtDifferentTimesConverge(t *testing.T) {
	r := newTestRegistry(t)

	early := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", early))

	require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
		return map[string]interface{}{"a": 1}
	}))

	late := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", late))

	require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
		return map[string]interface{}{"a": 2, "b": true}
	}))

	assert.Equal(t, early.replayed(t), late.replayed(t))
}

func TestEmptyDiffAdvancesSeqWithoutBroadcast(t *testing.T) {
	r := newTestRegistry(t)
	sub := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", sub))

	require.NoError(t, r.Publish("crosspoint", func(current interface{}) interface{} {
		return current
	}))

	_, seq, err := r.Snapshot("crosspoint")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Len(t, sub.messages, 1, "no patch expected for an empty diff")
}

func TestPermissionGatesSubscriptionAndDelivery(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("uiconfig", models.PermissionPublic, map[string]string{"theme": "dark"}))

	public := &fakeSubscriber{perm: models.PermissionPublic}

	err := r.Subscribe("crosspoint", "", public)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, r.Subscribe("uiconfig", "", public))
}

func TestFailedSendDropsSubscriber(t *testing.T) {
	r := newTestRegistry(t)
	sub := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", sub))

	sub.mu.Lock()
	sub.fail = true
	sub.mu.Unlock()

	require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
		return map[string]interface{}{"x": 1}
	}))

	// Recover the subscriber; no further deliveries should arrive.
	sub.mu.Lock()
	sub.fail = false
	sub.mu.Unlock()

	require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
		return map[string]interface{}{"x": 2}
	}))

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Len(t, sub.messages, 1, "dropped subscriber must not receive later patches")
}

func TestUnsubscribeRevokesAll(t *testing.T) {
	r := newTestRegistry(t)
	sub := &fakeSubscriber{perm: models.PermissionGlobal}
	require.NoError(t, r.Subscribe("crosspoint", "", sub))

	r.Unsubscribe(sub)

	require.NoError(t, r.Publish("crosspoint", func(interface{}) interface{} {
		return map[string]interface{}{"x": 1}
	}))

	assert.Len(t, sub.messages, 1)
}

func TestUnknownObject(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Subscribe("nope", "", &fakeSubscriber{perm: models.PermissionGlobal})
	assert.ErrorIs(t, err, ErrUnknownObject)
}
