package services

import (
	"sort"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/utils"
)

// Aggregator groups normalized listings by exact (title_key, year) and flags
// members priced inside the opportunity band below their group average.
type Aggregator struct {
	lowPct       float64 // inclusive lower bound, percent below average
	highPct      float64 // inclusive upper bound; deeper discounts are treated as mis-scraped
	minGroupSize int
	logger       *utils.Logger
}

// NewAggregator builds an Aggregator with the given band (percent values,
// e.g. 10 and 30) and minimum group size. Sizes below 2 are raised to 2:
// a single listing has no comparable set.
func NewAggregator(lowPct, highPct float64, minGroupSize int, logger *utils.Logger) *Aggregator {
	if minGroupSize < 2 {
		minGroupSize = 2
	}
	return &Aggregator{lowPct: lowPct, highPct: highPct, minGroupSize: minGroupSize, logger: logger}
}

// Aggregate runs one closed-batch pass: build groups in first-encounter
// order, compute averages, then collect opportunities sorted by discount
// descending (ties keep discovery order).
func (a *Aggregator) Aggregate(listings []*models.Listing) ([]*models.Group, []*models.Opportunity) {
	index := make(map[models.GroupKey]*models.Group)
	var groups []*models.Group

	for _, l := range listings {
		key := models.GroupKey{TitleKey: l.TitleKey, Year: l.Year}
		g, ok := index[key]
		if !ok {
			g = &models.Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Members = append(g.Members, l)
	}

	for _, g := range groups {
		var total float64
		for _, m := range g.Members {
			total += m.PriceARS
		}
		g.MemberCount = len(g.Members)
		g.AveragePrice = total / float64(g.MemberCount)
	}

	var opportunities []*models.Opportunity
	low := a.lowPct / 100
	high := a.highPct / 100

	for _, g := range groups {
		if g.MemberCount < a.minGroupSize {
			continue
		}
		for _, m := range g.Members {
			discount := (g.AveragePrice - m.PriceARS) / g.AveragePrice
			if discount < low || discount > high {
				continue
			}
			opportunities = append(opportunities, &models.Opportunity{
				Listing:      m,
				GroupAverage: g.AveragePrice,
				GroupSize:    g.MemberCount,
				DiffARS:      g.AveragePrice - m.PriceARS,
				DiscountPct:  discount,
			})
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].DiscountPct > opportunities[j].DiscountPct
	})

	a.logger.Debug("[aggregator] %d listings → %d groups, %d opportunities",
		len(listings), len(groups), len(opportunities))
	return groups, opportunities
}
