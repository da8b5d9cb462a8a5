package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func activePair(t *testing.T) (*MemLink, *MemSession, *MemSession, *recorder, *recorder) {
	t.Helper()
	link, a, b := NewMemPair("phone", "watch")
	ra, rb := &recorder{}, &recorder{}
	a.SetDelegate(ra)
	b.SetDelegate(rb)
	require.NoError(t, a.Activate())
	require.NoError(t, b.Activate())
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return link, a, b, ra, rb
}

func TestMem_ActivationAndReachability(t *testing.T) {
	link, a, b := NewMemPair("phone", "watch")
	ra, rb := &recorder{}, &recorder{}
	a.SetDelegate(ra)
	b.SetDelegate(rb)
	defer a.Close()
	defer b.Close()

	assert.Equal(t, "phone", a.Name())
	assert.True(t, link.Up())
	assert.False(t, a.IsReachable(), "not reachable before activation")

	require.NoError(t, a.Activate())
	assert.False(t, a.IsReachable(), "peer not activated yet")

	require.NoError(t, b.Activate())
	assert.True(t, a.IsReachable())
	assert.True(t, b.IsReachable())

	require.Eventually(t, func() bool {
		return len(ra.Events()) == 2 && len(rb.Events()) == 2
	}, waitFor, tick)
	assert.Equal(t, []string{"activation:activated:<nil>", "reachable:true"}, ra.Events())
	assert.Equal(t, []string{"activation:activated:<nil>", "reachable:true"}, rb.Events())
}

func TestMem_SetReachable(t *testing.T) {
	link, a, b, ra, rb := activePair(t)

	link.SetReachable(false)
	assert.False(t, a.IsReachable())
	assert.False(t, b.IsReachable())
	require.Eventually(t, func() bool {
		ev := ra.Events()
		return len(ev) > 0 && ev[len(ev)-1] == "reachable:false"
	}, waitFor, tick)

	// Repeating the same state reports nothing new.
	before := len(rb.Events())
	link.SetReachable(false)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rb.Events(), before)

	link.SetReachable(true)
	require.Eventually(t, func() bool {
		ev := rb.Events()
		return ev[len(ev)-1] == "reachable:true"
	}, waitFor, tick)
}

func TestMem_SendWithReply(t *testing.T) {
	_, a, _, _, rb := activePair(t)
	rb.reply = func(p []byte) []byte { return append([]byte("re:"), p...) }

	got := make(chan []byte, 1)
	a.SendWithReply(context.Background(), []byte("hello"), func(reply []byte, err error) {
		assert.NoError(t, err)
		got <- reply
	})

	select {
	case reply := <-got:
		assert.Equal(t, "re:hello", string(reply))
	case <-time.After(waitFor):
		t.Fatal("no reply")
	}
	assert.Equal(t, [][]byte{[]byte("hello")}, rb.Received())
}

func TestMem_SendWithReply_PayloadIsCopied(t *testing.T) {
	_, a, _, _, rb := activePair(t)

	payload := []byte("abc")
	done := make(chan struct{})
	a.SendWithReply(context.Background(), payload, func([]byte, error) { close(done) })
	payload[0] = 'X'
	<-done

	assert.Equal(t, "abc", string(rb.Received()[0]))
}

func TestMem_SendWhileUnreachable(t *testing.T) {
	link, a, _, _, rb := activePair(t)
	link.SetReachable(false)

	errs := make(chan error, 2)
	a.SendWithReply(context.Background(), []byte("x"), func(_ []byte, err error) { errs <- err })
	a.Send(context.Background(), []byte("y"), func(err error) { errs <- err })

	assert.ErrorIs(t, <-errs, ErrNotReachable)
	assert.ErrorIs(t, <-errs, ErrNotReachable)
	assert.Empty(t, rb.Received())
}

func TestMem_SendOneWay(t *testing.T) {
	_, a, _, _, rb := activePair(t)

	errs := make(chan error, 1)
	a.Send(context.Background(), []byte("one-way"), func(err error) { errs <- err })
	require.NoError(t, <-errs)

	assert.Contains(t, rb.Events(), "message:one-way")
}

func TestMem_SendCancelledContext(t *testing.T) {
	_, a, _, _, rb := activePair(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := make(chan error, 1)
	a.SendWithReply(ctx, []byte("x"), func(_ []byte, err error) { errs <- err })
	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Empty(t, rb.Received())
}

func TestMem_NilHandlers(t *testing.T) {
	_, a, _, _, rb := activePair(t)

	a.SendWithReply(context.Background(), []byte("r"), nil)
	a.Send(context.Background(), []byte("m"), nil)

	require.Eventually(t, func() bool { return len(rb.Received()) == 2 }, waitFor, tick)
}

func TestMem_InactiveAndDeactivate(t *testing.T) {
	_, a, b, ra, rb := activePair(t)

	a.BecomeInactive()
	assert.False(t, a.IsReachable())
	assert.False(t, b.IsReachable())

	a.Deactivate()
	require.Eventually(t, func() bool {
		ev := ra.Events()
		return len(ev) >= 2 && ev[len(ev)-1] == "deactivated"
	}, waitFor, tick)
	assert.Contains(t, ra.Events(), "inactive")
	require.Eventually(t, func() bool {
		for _, ev := range rb.Events() {
			if ev == "reachable:false" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	require.NoError(t, a.Activate())
	assert.True(t, a.IsReachable())
}

func TestMem_DelegateReplaced(t *testing.T) {
	_, a, b, _, rb := activePair(t)

	second := &recorder{}
	b.SetDelegate(second)

	done := make(chan struct{})
	a.SendWithReply(context.Background(), []byte("to-second"), func([]byte, error) { close(done) })
	<-done

	assert.Empty(t, rb.Received())
	assert.Equal(t, [][]byte{[]byte("to-second")}, second.Received())
}

func TestMem_Close(t *testing.T) {
	_, a, b, _, rb := activePair(t)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.False(t, a.IsReachable())
	assert.ErrorIs(t, b.Activate(), ErrClosed)

	errs := make(chan error, 1)
	a.SendWithReply(context.Background(), []byte("x"), func(_ []byte, err error) { errs <- err })
	assert.ErrorIs(t, <-errs, ErrNotReachable)
	assert.Empty(t, rb.Received())
}
