package sync

import (
	"strings"

	"nps-sync-service/internal/config"
	"nps-sync-service/internal/surveymonkey"
)

// NPSClassifier decides which remote questions feed the Net Promoter Score.
// A question qualifies when its heading contains one of the keywords and it
// has at least one weighted option, all weights within [min, max].
// No keywords disables automatic flagging.
type NPSClassifier struct {
	keywords  []string
	minWeight int
	maxWeight int
}

func NewNPSClassifier(cfg config.NPSConfig) *NPSClassifier {
	keywords := make([]string, 0, len(cfg.HeadingKeywords))
	for _, k := range cfg.HeadingKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return &NPSClassifier{
		keywords:  keywords,
		minWeight: cfg.MinWeight,
		maxWeight: cfg.MaxWeight,
	}
}

func (c *NPSClassifier) IsNPS(q surveymonkey.Question) bool {
	if c == nil || len(c.keywords) == 0 || !c.headingMatches(q.Heading) {
		return false
	}
	weighted := 0
	for _, a := range q.Answers {
		if a.Weight == nil {
			continue
		}
		if *a.Weight < c.minWeight || *a.Weight > c.maxWeight {
			return false
		}
		weighted++
	}
	return weighted > 0
}

func (c *NPSClassifier) headingMatches(heading string) bool {
	h := strings.ToLower(heading)
	for _, k := range c.keywords {
		if strings.Contains(h, k) {
			return true
		}
	}
	return false
}
