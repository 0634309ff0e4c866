package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoginAndLogout(t *testing.T) {
	r := NewRegistry()
	_, ok := r.UserOf("sid-1")
	assert.False(t, ok)

	r.Login("sid-1", "@alice:example.org")
	user, ok := r.UserOf("sid-1")
	require.True(t, ok)
	assert.Equal(t, "@alice:example.org", string(user))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := r.BindConn("sid-1", "!room", cancel)
	require.NoError(t, err)
	assert.Equal(t, 1, r.ConnCount("sid-1"))

	assert.True(t, r.Logout("sid-1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, r.Logout("sid-1"))
}

func TestRegistry_BindRequiresLogin(t *testing.T) {
	r := NewRegistry()
	_, err := r.BindConn("nobody", "!room", func() {})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestRegistry_SwitchUserCancelsConnections(t *testing.T) {
	r := NewRegistry()
	r.Login("sid", "@alice:example.org")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := r.BindConn("sid", "!room", cancel)
	require.NoError(t, err)

	r.Login("sid", "@alice:example.org")
	assert.NoError(t, ctx.Err(), "same user keeps connections")

	r.Login("sid", "@bob:example.org")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 0, r.ConnCount("sid"))
}

func TestRegistry_UnbindAndCancelRoom(t *testing.T) {
	r := NewRegistry()
	r.Login("a", "@alice:example.org")
	r.Login("b", "@bob:example.org")

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	idA, err := r.BindConn("a", "!one", cancelA)
	require.NoError(t, err)
	_, err = r.BindConn("b", "!two", cancelB)
	require.NoError(t, err)

	assert.Equal(t, 1, r.CancelRoom("!two"))
	assert.NoError(t, ctxA.Err())
	assert.ErrorIs(t, ctxB.Err(), context.Canceled)

	r.UnbindConn("a", idA)
	assert.Equal(t, 0, r.ConnCount("a"))
}

func TestRegistry_UserConnCountSpansSessions(t *testing.T) {
	r := NewRegistry()
	r.Login("laptop", "@alice:example.org")
	r.Login("phone", "@alice:example.org")
	r.Login("other", "@bob:example.org")

	a, err := r.BindConn("laptop", "!room", func() {})
	require.NoError(t, err)
	_, err = r.BindConn("phone", "!room", func() {})
	require.NoError(t, err)
	_, err = r.BindConn("other", "!room", func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, r.UserConnCount("@alice:example.org"))

	r.UnbindConn("laptop", a)
	assert.Equal(t, 0, r.ConnCount("laptop"))
	assert.Equal(t, 1, r.UserConnCount("@alice:example.org"))
	assert.Equal(t, 0, r.UserConnCount("@carol:example.org"))
}

func TestSimplePolicy(t *testing.T) {
	assert.Equal(t, DropFrame, SimplePolicy{}.OnBackPressure("sid"))
	assert.Equal(t, Disconnect, SimplePolicy{DisconnectSlow: true}.OnBackPressure("sid"))
}
