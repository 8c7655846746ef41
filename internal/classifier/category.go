package classifier

import "strings"

// Category is a canonical email label.
type Category string

const (
	Important  Category = "Important"
	Promotions Category = "Promotions"
	Social     Category = "Social"
	Marketing  Category = "Marketing"
	Spam       Category = "Spam"
	General    Category = "General"
)

// Categories lists every category in priority order.
var Categories = []Category{Important, Promotions, Social, Marketing, Spam, General}

// Source tells which path produced a classification.
type Source string

const (
	SourceLLM     Source = "llm"
	SourceKeyword Source = "keyword"
)

const (
	minConfidence     = 70
	maxConfidence     = 99
	defaultConfidence = 75
)

// Classification is the result of Classify.
type Classification struct {
	Category   Category `json:"category"`
	Confidence int      `json:"confidence"`
	Source     Source   `json:"source"`
}

// categoryStems maps free-form model output onto categories. Order matters:
// the first category with a matching stem wins.
var categoryStems = []struct {
	category Category
	stems    []string
}{
	{Important, []string{"important"}},
	{Promotions, []string{"promotion"}},
	{Social, []string{"social"}},
	{Marketing, []string{"marketing", "newsletter"}},
	{Spam, []string{"spam", "junk"}},
}

// Normalize maps a free-form label onto a Category by case-insensitive
// substring match. Unrecognised input is General.
func Normalize(raw string) Category {
	s := strings.ToLower(raw)
	for _, c := range categoryStems {
		for _, stem := range c.stems {
			if strings.Contains(s, stem) {
				return c.category
			}
		}
	}
	return General
}

func clampConfidence(c int) int {
	return min(max(c, minConfidence), maxConfidence)
}
