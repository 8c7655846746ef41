package classifier

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Category
	}{
		{"spam phrases", "You won the LOTTERY, click here to claim", Spam},
		{"important", "Agenda for tomorrow's meeting", Important},
		{"promotions", "Big discount this weekend", Promotions},
		{"social", "Your friend tagged you on Instagram", Social},
		{"marketing", "Our monthly newsletter", Marketing},
		{"important beats promotions", "Invoice for your sale", Important},
		{"promotions beats spam", "Special offer, unsubscribe anytime", Promotions},
		{"general", "Hello there", General},
		{"empty", "", General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyByKeywords(tt.content, rand.IntN)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, SourceKeyword, got.Source)
			assert.GreaterOrEqual(t, got.Confidence, 70)
			assert.LessOrEqual(t, got.Confidence, 99)
		})
	}
}

func TestClassifyByKeywords_ConfidenceBounds(t *testing.T) {
	low := classifyByKeywords("x", func(n int) int { return 0 })
	high := classifyByKeywords("x", func(n int) int { return n - 1 })

	assert.Equal(t, 70, low.Confidence)
	assert.Equal(t, 99, high.Confidence)

	var gotN int
	classifyByKeywords("x", func(n int) int { gotN = n; return 0 })
	assert.Equal(t, 30, gotN)
}
