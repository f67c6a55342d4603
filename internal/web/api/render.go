package api

import (
	"fmt"
	"time"

	"artemis/internal/automation"
	"artemis/internal/sentence"
	"artemis/internal/web/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

type rendered struct {
	sentence     string
	summary      string
	blocks       sentence.Blocks
	confirmation string
}

// Renderer caches rule text. Keys include UpdatedAt, so any mutation misses.
type Renderer struct {
	cache   *lru.Cache[string, rendered]
	nextRun func(automation.Rule) (time.Time, bool)
}

func NewRenderer(size int, nextRun func(automation.Rule) (time.Time, bool)) (*Renderer, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, rendered](size)
	if err != nil {
		return nil, err
	}
	return &Renderer{cache: cache, nextRun: nextRun}, nil
}

func (r *Renderer) View(rule automation.Rule) models.RuleView {
	key := fmt.Sprintf("%s@%d", rule.ID, rule.UpdatedAt.UnixNano())
	text, ok := r.cache.Get(key)
	if !ok {
		text = render(rule)
		r.cache.Add(key, text)
	}
	view := models.RuleView{
		Rule:     rule,
		Sentence: text.sentence,
		Summary:  text.summary,
		Blocks:   text.blocks,
	}
	if rule.RequiresConfirmation {
		view.Confirmation = text.confirmation
	}
	if r.nextRun != nil {
		if next, ok := r.nextRun(rule); ok {
			view.NextRun = &next
		}
	}
	return view
}

func (r *Renderer) Views(rules []automation.Rule) []models.RuleView {
	out := make([]models.RuleView, 0, len(rules))
	for _, rule := range rules {
		out = append(out, r.View(rule))
	}
	return out
}

// Len returns the number of cached renderings
func (r *Renderer) Len() int {
	return r.cache.Len()
}

func render(rule automation.Rule) rendered {
	return rendered{
		sentence:     sentence.RuleSentence(rule),
		summary:      sentence.RuleSummary(rule),
		blocks:       sentence.RuleBlocks(rule),
		confirmation: sentence.ConfirmationMessage(rule),
	}
}
