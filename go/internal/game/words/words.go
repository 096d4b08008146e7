package words

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Supply returns up to count random words drawn from the given categories.
// An empty category list means any category.
type Supply interface {
	GetRandomWords(ctx context.Context, categories []string, count int) ([]string, error)
}

// DefaultWords is the pool used when no categorized supply yields words.
var DefaultWords = []string{
	"apple", "banana", "bicycle", "bridge", "butterfly", "camera", "candle", "castle",
	"cat", "clock", "cloud", "dog", "dragon", "elephant", "guitar", "hammer",
	"house", "island", "kite", "ladder", "lighthouse", "moon", "mountain", "octopus",
	"penguin", "pizza", "rainbow", "robot", "rocket", "snowman", "sun", "tree",
	"turtle", "umbrella", "volcano", "whale",
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Fallback draws count distinct words from DefaultWords.
func Fallback(count int) []string {
	return sample(DefaultWords, count)
}

// sample returns up to count distinct entries of pool in random order.
func sample(pool []string, count int) []string {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	rngMu.Lock()
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	rngMu.Unlock()

	if count > len(pool) {
		count = len(pool)
	}
	out := make([]string, 0, count)
	for _, i := range idx[:count] {
		out = append(out, pool[i])
	}
	return out
}

// Clean trims words, drops empties and removes case-insensitive duplicates,
// keeping the first spelling seen.
func Clean(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Chain asks each supply in order and returns the first non-empty answer.
// Errors are logged and the next supply is tried.
type Chain []Supply

func (c Chain) GetRandomWords(ctx context.Context, categories []string, count int) ([]string, error) {
	var lastErr error
	for _, s := range c {
		if s == nil {
			continue
		}
		words, err := s.GetRandomWords(ctx, categories, count)
		if err != nil {
			log.Warn().Err(err).Strs("categories", categories).Msg("word supply failed, trying next")
			lastErr = err
			continue
		}
		if words = Clean(words); len(words) > 0 {
			return words, nil
		}
	}
	return nil, lastErr
}
