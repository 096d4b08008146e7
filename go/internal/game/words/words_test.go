package words

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallback(t *testing.T) {
	got := Fallback(4)
	require.Len(t, got, 4)
	assert.Len(t, Clean(got), 4, "fallback words must be distinct")
	for _, w := range got {
		assert.Contains(t, DefaultWords, w)
	}

	assert.Len(t, Fallback(len(DefaultWords)+10), len(DefaultWords))
	assert.Empty(t, Fallback(0))
}

func TestClean(t *testing.T) {
	got := Clean([]string{" Cat ", "cat", "", "dog", "DOG", "  "})
	assert.Equal(t, []string{"Cat", "dog"}, got)
}

func TestFileSupply(t *testing.T) {
	categories, err := Parse([]byte("Animals: [cat, dog, cow]\nfood:\n  - pizza\n  - pie\n"))
	require.NoError(t, err)
	s := NewFileSupply(categories)

	assert.Equal(t, []string{"animals", "food"}, s.Categories())

	got, err := s.GetRandomWords(context.Background(), []string{"animals"}, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat", "dog", "cow"}, got)

	got, err = s.GetRandomWords(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = s.GetRandomWords(context.Background(), []string{"missing"}, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("animals: {cat"))
	assert.Error(t, err)
}

type stubSupply struct {
	words []string
	err   error
	calls int
}

func (s *stubSupply) GetRandomWords(context.Context, []string, int) ([]string, error) {
	s.calls++
	return s.words, s.err
}

func TestChain(t *testing.T) {
	failing := &stubSupply{err: errors.New("db down")}
	empty := &stubSupply{words: []string{" "}}
	good := &stubSupply{words: []string{"cat", "Cat", "dog"}}
	unused := &stubSupply{words: []string{"never"}}

	got, err := Chain{failing, nil, empty, good, unused}.GetRandomWords(context.Background(), []string{"animals"}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, got)
	assert.Equal(t, 0, unused.calls)

	got, err = Chain{failing}.GetRandomWords(context.Background(), nil, 4)
	assert.Empty(t, got)
	assert.True(t, strings.Contains(err.Error(), "db down"))
}
