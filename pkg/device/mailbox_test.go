package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxReceiveReturnsPutItem(t *testing.T) {
	m := newMailbox[int]()
	m.Put(42)

	got, ok := m.Receive(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestMailboxPutReplacesPendingItem(t *testing.T) {
	m := newMailbox[int]()
	m.Put(1)
	m.Put(2)

	got, ok := m.Receive(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 2, got, "newest item replaces the stale one, like a maxlen=1 deque")
}

func TestMailboxReceiveTimesOut(t *testing.T) {
	m := newMailbox[int]()
	_, ok := m.Receive(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
}

func TestMailboxReceiveRespectsContextCancellation(t *testing.T) {
	m := newMailbox[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := m.Receive(ctx, time.Second)
	assert.False(t, ok)
}

func TestAppendErrorDeduplicates(t *testing.T) {
	d := &Device{}
	d.appendError("boom")
	d.appendError("boom")
	d.appendError("other")

	errs := d.GetErrors()
	assert.Equal(t, []string{"boom", "other"}, errs)
	assert.Empty(t, d.GetErrors(), "errors are drained once read")
}
