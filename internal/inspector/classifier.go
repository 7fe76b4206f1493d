package inspector

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/log"
)

// Classifier lists element categories and toggles their visibility across
// every loaded model.
type Classifier struct {
	fragments engine.FragmentsManager
}

// NewClassifier returns a classifier over fragments.
func NewClassifier(fragments engine.FragmentsManager) *Classifier {
	return &Classifier{fragments: fragments}
}

// Categories returns the sorted union of the geometry categories of all
// models.
func (c *Classifier) Categories(ctx context.Context) ([]string, error) {
	var out []string
	for _, model := range c.fragments.Models() {
		cats, err := model.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("categories of %s: %w", model.ID(), err)
		}
		out = append(out, cats...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Isolate shows only the elements of the given categories.
func (c *Classifier) Isolate(ctx context.Context, categories []string) error {
	if len(categories) == 0 {
		return c.Reset(ctx)
	}
	return c.apply(ctx, categories, true)
}

// Hide hides the elements of the given categories.
func (c *Classifier) Hide(ctx context.Context, categories []string) error {
	if len(categories) == 0 {
		return nil
	}
	return c.apply(ctx, categories, false)
}

func (c *Classifier) apply(ctx context.Context, categories []string, isolate bool) error {
	patterns := exactPatterns(categories)
	for _, model := range c.fragments.Models() {
		matched, err := model.ItemsOfCategories(ctx, patterns)
		if err != nil {
			return fmt.Errorf("items of %v in %s: %w", categories, model.ID(), err)
		}
		if isolate {
			all, err := model.ItemsOfCategories(ctx, []string{".*"})
			if err != nil {
				return fmt.Errorf("items of %s: %w", model.ID(), err)
			}
			var others []int
			for id := range all {
				if !matched.Has(id) {
					others = append(others, id)
				}
			}
			slices.Sort(others)
			if err := model.SetVisible(ctx, others, false); err != nil {
				return fmt.Errorf("hide in %s: %w", model.ID(), err)
			}
			if err := model.SetVisible(ctx, matched.Sorted(), true); err != nil {
				return fmt.Errorf("show in %s: %w", model.ID(), err)
			}
			continue
		}
		if err := model.SetVisible(ctx, matched.Sorted(), false); err != nil {
			return fmt.Errorf("hide in %s: %w", model.ID(), err)
		}
	}
	log.Debug(log.CatEngine, "Category visibility changed", "categories", categories, "isolate", isolate)
	return c.fragments.Update(ctx, true)
}

// Reset makes every element of every model visible again.
func (c *Classifier) Reset(ctx context.Context) error {
	for _, model := range c.fragments.Models() {
		if err := model.ResetVisible(ctx); err != nil {
			return fmt.Errorf("reset visibility of %s: %w", model.ID(), err)
		}
	}
	return c.fragments.Update(ctx, true)
}

func exactPatterns(categories []string) []string {
	out := make([]string, len(categories))
	for i, cat := range categories {
		out[i] = "^" + regexp.QuoteMeta(cat) + "$"
	}
	return out
}
