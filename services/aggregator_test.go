package services

import (
	"math"
	"testing"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
)

func listing(key string, year int, priceARS float64) *models.Listing {
	return &models.Listing{Title: key, TitleKey: key, Year: year, PriceARS: priceARS}
}

func TestAggregateGroupsByKeyAndYear(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	listings := []*models.Listing{
		listing("toyota corolla", 2018, 3000000),
		listing("toyota corolla", 2018, 2700000),
		listing("toyota corolla", 2019, 3500000),
		listing("vw gol trend", 2018, 1500000),
	}

	groups, _ := a.Aggregate(listings)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	first := groups[0]
	if first.Key.TitleKey != "toyota corolla" || first.Key.Year != 2018 {
		t.Errorf("first group key = %+v; want (toyota corolla, 2018)", first.Key)
	}
	if first.MemberCount != 2 {
		t.Errorf("first group members = %d; want 2", first.MemberCount)
	}
	if first.AveragePrice != 2850000 {
		t.Errorf("first group average = %.0f; want 2850000", first.AveragePrice)
	}
}

func TestAggregateSingletonGroupsNeverFlag(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	_, opps := a.Aggregate([]*models.Listing{
		listing("toyota corolla", 2018, 3000000),
		listing("vw gol trend", 2018, 1000000),
	})
	if len(opps) != 0 {
		t.Errorf("expected no opportunities from singleton groups, got %d", len(opps))
	}
}

func TestAggregateBandBoundaries(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	tests := []struct {
		name   string
		prices []float64
		// title keys of listings expected to be flagged, by price
		wantFlagged []float64
	}{
		// avg 1,000,000; 900,000 is exactly 10% below — inclusive bound.
		{"exactly 10 percent", []float64{1100000, 900000}, []float64{900000}},
		// avg 1,000,000; 700,000 is exactly 30% below — inclusive bound.
		{"exactly 30 percent", []float64{700000, 1100000, 1200000}, []float64{700000}},
		// avg 1,000,000; 901,000 is 9.9% below — outside the band.
		{"just under 10 percent", []float64{901000, 1099000}, nil},
		// avg 1,000,000; 699,000 is 30.1% below — treated as mis-scraped.
		{"just over 30 percent", []float64{699000, 1301000}, nil},
	}

	for _, tt := range tests {
		var listings []*models.Listing
		for _, p := range tt.prices {
			listings = append(listings, listing("toyota corolla", 2018, p))
		}

		_, opps := a.Aggregate(listings)
		if len(opps) != len(tt.wantFlagged) {
			t.Errorf("%s: flagged %d listings; want %d", tt.name, len(opps), len(tt.wantFlagged))
			continue
		}
		for i, want := range tt.wantFlagged {
			if opps[i].Listing.PriceARS != want {
				t.Errorf("%s: flagged price %.0f; want %.0f", tt.name, opps[i].Listing.PriceARS, want)
			}
		}
	}
}

func TestAggregateOpportunityFields(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	// avg 2,700,000; the 2,400,000 listing sits ~11.1% below it.
	_, opps := a.Aggregate([]*models.Listing{
		listing("toyota corolla", 2018, 3000000),
		listing("toyota corolla", 2018, 2700000),
		listing("toyota corolla", 2018, 2400000),
	})

	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	o := opps[0]
	if o.Listing.PriceARS != 2400000 {
		t.Errorf("flagged price = %.0f; want 2400000", o.Listing.PriceARS)
	}
	if o.GroupAverage != 2700000 {
		t.Errorf("group average = %.0f; want 2700000", o.GroupAverage)
	}
	if o.GroupSize != 3 {
		t.Errorf("group size = %d; want 3", o.GroupSize)
	}
	if o.DiffARS != 300000 {
		t.Errorf("diff = %.0f; want 300000", o.DiffARS)
	}
	if math.Abs(o.DiscountPct-1.0/9.0) > 1e-9 {
		t.Errorf("discount = %.6f; want %.6f", o.DiscountPct, 1.0/9.0)
	}
}

func TestAggregateTwoListingsTooClose(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	// avg 2,850,000; the cheaper one is ~5.3% below — not enough.
	_, opps := a.Aggregate([]*models.Listing{
		listing("toyota corolla", 2018, 3000000),
		listing("toyota corolla", 2018, 2700000),
	})
	if len(opps) != 0 {
		t.Errorf("expected no opportunities, got %d", len(opps))
	}
}

func TestAggregateSortsByDiscountDesc(t *testing.T) {
	a := NewAggregator(10, 30, 2, newTestLogger())

	// Two groups, each producing one opportunity with a different discount.
	_, opps := a.Aggregate([]*models.Listing{
		listing("toyota corolla", 2018, 1100000),
		listing("toyota corolla", 2018, 900000), // 10% below 1,000,000
		listing("vw vento", 2019, 1250000),
		listing("vw vento", 2019, 750000), // 25% below 1,000,000
	})

	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opps))
	}
	if opps[0].Listing.TitleKey != "vw vento" {
		t.Errorf("first opportunity = %q; want the deeper discount (vw vento)", opps[0].Listing.TitleKey)
	}
	if opps[0].DiscountPct <= opps[1].DiscountPct {
		t.Errorf("opportunities not sorted by discount desc: %.4f then %.4f",
			opps[0].DiscountPct, opps[1].DiscountPct)
	}
}

func TestAggregateMinGroupSizeFloor(t *testing.T) {
	// A configured size of 0 must still require 2 members.
	a := NewAggregator(10, 30, 0, newTestLogger())

	_, opps := a.Aggregate([]*models.Listing{
		listing("toyota corolla", 2018, 900000),
	})
	if len(opps) != 0 {
		t.Errorf("expected no opportunities from a 1-member group, got %d", len(opps))
	}
}
