package pricing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/bid-intel/internal/model"
	"github.com/sells-group/bid-intel/internal/store"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

type contractFixture struct {
	number   string
	date     string
	county   string
	district string
	year     int
}

type bidFixture struct {
	bidder           string
	rank             int
	winner           bool
	total            float64
	spread           *float64
	item             string
	qty              float64
	price            float64
	itemRank         int
	low              bool
	engineerEstimate *float64
}

func (c contractFixture) bid(b bidFixture) model.BidRecord {
	return model.BidRecord{
		ContractNumber:        c.number,
		LettingDate:           c.date,
		LettingYear:           c.year,
		County:                strPtr(c.county),
		District:              strPtr(c.district),
		ItemNumber:            b.item,
		ItemDescription:       "DESC " + b.item,
		Unit:                  "EACH",
		Quantity:              b.qty,
		UnitPrice:             b.price,
		Extension:             b.qty * b.price,
		EngineersEstUnitPrice: b.engineerEstimate,
		BidderName:            b.bidder,
		BidderNumber:          "N-" + b.bidder,
		BidderRank:            b.rank,
		ItemRank:              b.itemRank,
		IsWinner:              b.winner,
		IsLowItem:             b.low,
		TotalBidAmount:        b.total,
		BidSpreadPct:          b.spread,
		NumBidders:            2,
	}
}

// fixtureBids is a three-contract dataset:
//
//	C1 2023 Cook/1: Acme (winner) and Beta, five items
//	C2 2024 Cook/1: Beta (winner) and Acme, one item
//	C3 2024 Lake/2: Acme alone, one item
func fixtureBids() []model.BidRecord {
	c1 := contractFixture{"C1", "2023-03-10", "Cook", "1", 2023}
	c2 := contractFixture{"C2", "2024-02-01", "Cook", "1", 2024}
	c3 := contractFixture{"C3", "2024-06-15", "Lake", "2", 2024}

	acme1 := bidFixture{bidder: "Acme Paving", rank: 1, winner: true, total: 100000}
	beta1 := bidFixture{bidder: "Beta Builders", rank: 2, total: 120000, spread: floatPtr(20)}

	with := func(b bidFixture, item string, qty, price float64, itemRank int, low bool) bidFixture {
		b.item, b.qty, b.price, b.itemRank, b.low = item, qty, price, itemRank, low
		return b
	}

	est := with(acme1, "40600100", 100, 80, 1, true)
	est.engineerEstimate = floatPtr(85)

	bids := []model.BidRecord{
		c1.bid(est),
		c1.bid(with(beta1, "40600100", 100, 90, 2, false)),
		c1.bid(with(acme1, "40600200", 50, 10, 1, true)),
		c1.bid(with(beta1, "40600200", 50, 12, 2, false)),
		c1.bid(with(acme1, "50100100", 10, 500, 2, false)),
		c1.bid(with(beta1, "50100100", 10, 450, 1, true)),
		c1.bid(with(acme1, "50200100", 1, 1000, 1, true)),
		c1.bid(with(beta1, "50200100", 1, 1100, 2, false)),
		c1.bid(with(acme1, "70100100", 0, 0, 1, false)),
		c1.bid(with(beta1, "70100100", 0, 0, 2, false)),
	}

	beta2 := bidFixture{bidder: "Beta Builders", rank: 1, winner: true, total: 18000}
	acme2 := bidFixture{bidder: "Acme Paving", rank: 2, total: 19500, spread: floatPtr(8.3)}
	bids = append(bids,
		c2.bid(with(beta2, "40600100", 300, 60, 1, true)),
		c2.bid(with(acme2, "40600100", 300, 65, 2, false)),
	)

	acme3 := bidFixture{bidder: "Acme Paving", rank: 1, winner: true, total: 50000}
	bids = append(bids, c3.bid(with(acme3, "40600100", 100, 100, 1, true)))
	return bids
}

// newTestEngine loads fixtureBids into a fresh SQLite store.
func newTestEngine(t *testing.T, winnersOnly bool) *Engine {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "bids.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	_, err = st.InsertBids(ctx, fixtureBids())
	require.NoError(t, err)

	return New(st.Querier(), Options{WinningBidsOnly: winnersOnly, MaxResults: 100})
}
