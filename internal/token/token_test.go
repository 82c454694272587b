package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gikoskos/simbly/internal/token"
)

func Test_CodeByName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want token.Code
		ok   bool
	}{
		{"LOAD", token.LOAD, true},
		{"RETURN", token.RETURN, true},
		{"BRGE", token.BRGE, true},
		{"NOPE", 0, false},
		{"", 0, false},
	} {
		got, ok := token.CodeByName(tc.name)
		assert.Equal(t, tc.ok, ok, "ok for %q", tc.name)
		if tc.ok {
			assert.Equal(t, tc.want, got, "code for %q", tc.name)
		}
	}
}

func Test_Code_String(t *testing.T) {
	assert.Equal(t, "LOAD", token.LOAD.String())
	assert.Equal(t, "INVALID", token.Code(-1).String())
}

func Test_Stream_FIFO(t *testing.T) {
	var s token.Stream
	require.Equal(t, 0, s.Len())

	_, ok := s.Pop()
	require.False(t, ok, "pop of empty stream")

	s.Push(token.Token{Kind: token.KindIntVal, Int: 1})
	s.Push(token.Token{Kind: token.KindIntVal, Int: 2})
	s.Push(token.Token{Kind: token.KindIntVal, Int: 3})
	require.Equal(t, 3, s.Len())

	for _, want := range []int32{1, 2, 3} {
		tok, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, want, tok.Int)
	}
	_, ok = s.Pop()
	assert.False(t, ok, "pop past exhaustion")
}

func Test_Stream_GrowsPastIncrement(t *testing.T) {
	var s token.Stream
	const n = 40 // more than one growIncrement's worth
	for i := int32(0); i < n; i++ {
		s.Push(token.Token{Kind: token.KindIntVal, Int: i})
	}
	require.Equal(t, n, s.Len())
	for i := int32(0); i < n; i++ {
		tok, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, i, tok.Int)
	}
}

func Test_Stream_Reset(t *testing.T) {
	var s token.Stream
	s.Push(token.Token{Kind: token.KindIntVal, Int: 1})
	s.Push(token.Token{Kind: token.KindIntVal, Int: 2})
	s.Reset()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Pop()
	assert.False(t, ok)

	// the stream must be fully reusable after Reset, not just reporting Len==0
	s.Push(token.Token{Kind: token.KindIntVal, Int: 9})
	tok, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, int32(9), tok.Int)
}

// Test_Stream_PushPopInterleaved exercises a ring buffer whose head index has
// moved away from 0, since Push/Pop/Push cycles advance head each round.
func Test_Stream_PushPopInterleaved(t *testing.T) {
	var s token.Stream
	var want []int32
	for round := 0; round < 5; round++ {
		s.Push(token.Token{Kind: token.KindIntVal, Int: int32(round)})
		s.Push(token.Token{Kind: token.KindIntVal, Int: int32(round * 10)})
		want = append(want, int32(round), int32(round*10))
		tok, ok := s.Pop()
		require.True(t, ok)
		assert.Equal(t, want[0], tok.Int)
		want = want[1:]
	}
	require.Equal(t, 5, s.Len())
}
