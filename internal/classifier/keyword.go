package classifier

import "strings"

// keywordRules are checked in order; the first rule with a keyword found in
// the content decides the category.
var keywordRules = []struct {
	category Category
	keywords []string
}{
	{Important, []string{"meeting", "invoice", "project", "deadline", "review"}},
	{Promotions, []string{"sale", "discount", "offer", "deal"}},
	{Social, []string{"facebook", "twitter", "instagram", "friend", "family"}},
	{Marketing, []string{"newsletter", "marketing", "update"}},
	{Spam, []string{"unsubscribe", "win money", "lottery", "click here"}},
}

// classifyByKeywords labels content without any external call. The
// confidence is cosmetic: uniform in [70, 99] drawn from intn.
func classifyByKeywords(content string, intn func(int) int) Classification {
	lc := strings.ToLower(content)

	category := General
rules:
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lc, kw) {
				category = rule.category
				break rules
			}
		}
	}

	return Classification{
		Category:   category,
		Confidence: minConfidence + intn(maxConfidence-minConfidence+1),
		Source:     SourceKeyword,
	}
}
