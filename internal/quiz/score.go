package quiz

import (
	"math"
	"math/rand"

	"avtotest-service/internal/domain"
)

// Score is the percentage of correct answers rounded half-up. An empty quiz scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(100*float64(correct)/float64(total) + 0.5))
}

// SamplePool draws up to n questions uniformly without replacement.
// n <= 0 keeps the whole pool, shuffled. The input slice is not modified.
func SamplePool(questions []domain.Question, n int, rng *rand.Rand) []domain.Question {
	pool := append([]domain.Question(nil), questions...)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n > 0 && n < len(pool) {
		pool = pool[:n]
	}
	return pool
}
