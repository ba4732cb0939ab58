package entities

import "sort"

type CategoryCount struct {
	Category string
	Count    int
}

// AvailableSummary describes the pool at the time a request was evaluated.
type AvailableSummary struct {
	Categories []CategoryCount
	Total      int
}

// NewAvailableSummary sorts categories by name and drops empty ones.
func NewAvailableSummary(counts []CategoryCount, total int) AvailableSummary {
	categories := make([]CategoryCount, 0, len(counts))
	for _, item := range counts {
		if item.Count > 0 {
			categories = append(categories, item)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Category < categories[j].Category
	})
	return AvailableSummary{Categories: categories, Total: total}
}
