package tokenbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensRoundsUp(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestCounterFallsBackWithoutEncoder(t *testing.T) {
	c := &Counter{}
	text := "hello world"
	assert.Equal(t, EstimateTokens(text), c.CountTokens(text))
}

func TestCounterMultipleSumsIndividualCounts(t *testing.T) {
	c := &Counter{}
	texts := []string{"ab", "abcd", "abcde"}
	sum := 0
	for _, s := range texts {
		sum += c.CountTokens(s)
	}
	assert.Equal(t, sum, c.CountTokensMultiple(texts))
}
