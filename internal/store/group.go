package store

import (
	"sort"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// GroupByDeal folds a newest-first search result into per-deal groups.
// Groups keep first-seen order of their deal, then get re-sorted so the deal
// with the most recent analysis comes first. Within a group the input order
// (newest first) is preserved.
func GroupByDeal(analyses []model.Analysis) []model.DealGroup {
	byDeal := map[string]*model.DealGroup{}
	var order []string

	for _, a := range analyses {
		g, ok := byDeal[a.DealID]
		if !ok {
			g = &model.DealGroup{
				DealID:          a.DealID,
				DealName:        a.DealName,
				LatestCreatedAt: a.CreatedAt,
			}
			byDeal[a.DealID] = g
			order = append(order, a.DealID)
		}
		g.Analyses = append(g.Analyses, a)
	}

	groups := make([]model.DealGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byDeal[id])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LatestCreatedAt.After(groups[j].LatestCreatedAt)
	})
	return groups
}

func sortStatsByUsage(stats []model.FeedbackStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].AnalysisCount > stats[j].AnalysisCount
	})
}
