package filter

import (
	"testing"

	"github.com/antonmedv/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetFilter(t *testing.T) {
	env := NewEnv()
	env.Room = Room{Name: "lobby", Topic: "42,43"}
	env.Sender = Participant{ListId: "list-a", Handle: "alice", Registered: true}
	env.Viewer = Participant{ListId: "list-b", Handle: "bob", Moderator: true}

	res, err := expr.Eval(`Sender.Handle == "alice"`, env)
	require.NoError(t, err)
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`Viewer.Moderator`, env)
	require.NoError(t, err)
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`Viewer.Registered && Sender.Registered`, env)
	require.NoError(t, err)
	assert.Equal(t, false, res.(bool))

	res, err = expr.Eval(`AsIntSlice(Room.Topic)[1] == 43`, env)
	require.NoError(t, err)
	assert.Equal(t, true, res.(bool))
}

func TestTargetFilterCompilesAgainstEnv(t *testing.T) {
	_, err := expr.Compile(`Viewer.Moderator || Sender.ListId == Viewer.ListId`, expr.Env(Env{}))
	require.NoError(t, err)

	_, err = expr.Compile(`NoSuchField == 1`, expr.Env(Env{}))
	assert.Error(t, err)
}

func TestConversionHelpers(t *testing.T) {
	assert.Equal(t, int64(42), AsInt("42"))
	assert.Equal(t, int64(0), AsInt("nope"))
	assert.Equal(t, 0.5, AsFloat("0.5"))
	assert.Equal(t, []int64{1, 2, 3}, AsIntSlice("1,2,3"))
	assert.Equal(t, []float64{1.5, 0}, AsFloatSlice("1.5,x"))
	assert.Equal(t, []string{"a", "b"}, AsStringSlice("a,b"))
}
