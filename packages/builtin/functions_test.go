package builtin

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall(t *testing.T) {
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r := NewRegistry().WithClock(func() time.Time { return fixed })
	t.Setenv("TALLY_BUILTIN_TEST", "set")

	tests := []struct {
		expr string
		want string
	}{
		{"now()", "2026-02-03T04:05:06Z"},
		{"timestamp()", strconv.FormatInt(fixed.Unix(), 10)},
		{"timestampMs()", strconv.FormatInt(fixed.UnixMilli(), 10)},
		{"date()", "2026-02-03"},
		{`date("15:04")`, "04:05"},
		{`base64("hello")`, "aGVsbG8="},
		{"base64Decode(aGVsbG8=)", "hello"},
		{`sha256("abc")`, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{`md5("abc")`, "900150983cd24fb0d6963f7d28e17f72"},
		{`urlEncode("a b&c")`, "a+b%26c"},
		{"urlDecode(a+b%26c)", "a b&c"},
		{"env(TALLY_BUILTIN_TEST)", "set"},
		{`env(TALLY_BUILTIN_MISSING, "fallback")`, "fallback"},
		{"random(7, 7)", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok, err := r.Call(tt.expr)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCall_Generated(t *testing.T) {
	r := NewRegistry()

	id, ok, err := r.Call("uuid()")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	s, _, err := r.Call("randomString(12)")
	require.NoError(t, err)
	assert.Len(t, s, 12)
	assert.Regexp(t, `^[a-zA-Z0-9]+$`, s)

	n, _, err := r.Call("random(1, 3)")
	require.NoError(t, err)
	v, err := strconv.Atoi(n)
	require.NoError(t, err)
	assert.True(t, v >= 1 && v <= 3)
}

func TestCall_NotACall(t *testing.T) {
	r := NewRegistry()
	for _, expr := range []string{"token", "login.token", "unknown()"} {
		_, ok, err := r.Call(expr)
		assert.False(t, ok, expr)
		assert.NoError(t, err, expr)
	}
}

func TestCall_BadArguments(t *testing.T) {
	r := NewRegistry()

	_, ok, err := r.Call("random(a, 3)")
	assert.True(t, ok)
	assert.ErrorContains(t, err, `random(): min argument "a" is not a valid integer`)

	_, _, err = r.Call("random(5, 1)")
	assert.ErrorContains(t, err, "below min")

	_, _, err = r.Call("base64Decode(%%%)")
	assert.Error(t, err)

	_, _, err = r.Call("env()")
	assert.ErrorContains(t, err, "missing variable name")
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("shout", func(args []string) (string, error) { return args[0] + "!", nil })

	got, ok, err := r.Call("shout(hey)")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hey!", got)
	assert.Contains(t, r.Names(), "shout")
	assert.True(t, IsCall("shout(hey)"))
	assert.False(t, IsCall("shout"))
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b, c", "d"}, parseArgs(`a, "b, c", 'd'`))
	assert.Nil(t, parseArgs(""))
}
