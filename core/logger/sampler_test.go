package logger

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerRatio(t *testing.T) {
	s := newSampler(2, 5)
	var got []bool
	for i := 0; i < 10; i++ {
		got = append(got, s.Allow())
	}
	assert.Equal(t, []bool{true, true, false, false, false, true, true, false, false, false}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	s.Set(9, 3)
	assert.True(t, s.Allow(), "numerator is capped at the denominator")
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
	}{
		{"1/10", 1, 10},
		{" 3 / 4 ", 3, 4},
		{"50", 1, 50},
		{"25%", 25, 100},
		{"150%", 100, 100},
		{"0", 0, 0},
		{"x/2", 0, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		num, den := parseRatio(tt.in)
		assert.Equal(t, tt.num, num, tt.in)
		assert.Equal(t, tt.den, den, tt.in)
	}
}

func TestLineWriterFansOut(t *testing.T) {
	var a, b bytes.Buffer
	w := newLineWriter([]io.Writer{&a, nil, &b}, 16)
	require.NoError(t, w.Write([]byte("one\n")))
	require.NoError(t, w.Write([]byte("two\n")))
	require.NoError(t, w.Flush())
	assert.Equal(t, "one\ntwo\n", a.String())
	assert.Equal(t, a.String(), b.String())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Flush())
}

type brokenSink struct{}

func (brokenSink) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestLineWriterKeepsFirstError(t *testing.T) {
	w := newLineWriter([]io.Writer{brokenSink{}}, 1)
	require.NoError(t, w.Write([]byte("lost\n")))
	assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)
	assert.ErrorIs(t, w.Write([]byte("again\n")), io.ErrClosedPipe)
}
