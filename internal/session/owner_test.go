package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubonboard/hubsetup/internal/ble/bletest"
)

func TestOwner_SelectReplacesCurrentSession(t *testing.T) {
	radio := bletest.NewRadio()
	peer1 := newPeer(radio, "H1")
	newPeer(radio, "H2")
	owner := NewOwner(radio)
	ctx := context.Background()

	assert.Nil(t, owner.Current())

	first := owner.Select(ctx, testHub("H1"))
	require.NoError(t, first.Connect(ctx))
	assert.Same(t, first, owner.Current())

	// selecting the same hub keeps the session
	assert.Same(t, first, owner.Select(ctx, testHub("H1")))

	second := owner.Select(ctx, testHub("H2"))
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, second, owner.Current())

	// the previous session was disconnected before the new one was handed out
	assert.Equal(t, StatusDisconnected, first.Status())
	assert.True(t, peer1.Link().Closed())
	assert.Equal(t, StatusDisconnected, second.Status())

	require.NoError(t, second.Connect(ctx))
	owner.Release(ctx)
	assert.Nil(t, owner.Current())
	assert.Equal(t, StatusDisconnected, second.Status())

	// releasing with no session is a no-op
	owner.Release(ctx)
}
