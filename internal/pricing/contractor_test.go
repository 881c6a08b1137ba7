package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractorSummary(t *testing.T) {
	e := newTestEngine(t, true)

	st, err := e.ContractorSummary(context.Background(), Filter{Contractor: "acme"})
	require.NoError(t, err)

	assert.Equal(t, 3, st.ContractsBid)
	assert.Equal(t, 2, st.ContractsWon)
	assert.InDelta(t, 66.7, st.WinRate, 1e-9)
	require.NotNil(t, st.AvgRank)
	assert.InDelta(t, 4.0/3.0, *st.AvgRank, 1e-9)
	assert.InDelta(t, 150000.0, st.TotalWonValue, 1e-9)
	require.NotNil(t, st.AvgBidAmount)
	assert.InDelta(t, (100000.0+19500.0+50000.0)/3, *st.AvgBidAmount, 1e-6)
	require.NotNil(t, st.AvgSpreadPct)
	assert.InDelta(t, 8.3, *st.AvgSpreadPct, 1e-9)
	assert.Equal(t, 7, st.ItemBids)
	assert.Equal(t, 4, st.LowItemBids)
	assert.InDelta(t, 57.1, st.ItemWinRate, 1e-9)
}

func TestContractorSummary_NoContracts(t *testing.T) {
	e := newTestEngine(t, true)

	st, err := e.ContractorSummary(context.Background(), Filter{Contractor: "Zeta Concrete"})
	require.NoError(t, err)

	assert.Equal(t, 0, st.ContractsBid)
	assert.Equal(t, 0.0, st.WinRate)
	assert.Equal(t, 0.0, st.ItemWinRate)
	assert.Nil(t, st.AvgRank)
	assert.Nil(t, st.AvgBidAmount)
	assert.Equal(t, 0.0, st.TotalWonValue)
}

func TestContractorSummary_LikeWildcardsAreLiteral(t *testing.T) {
	e := newTestEngine(t, true)

	for _, name := range []string{"%", "_", `\`} {
		st, err := e.ContractorSummary(context.Background(), Filter{Contractor: name})
		require.NoError(t, err)
		assert.Equal(t, 0, st.ContractsBid, name)
	}
}

func TestContractorBids(t *testing.T) {
	e := newTestEngine(t, true)

	bids, err := e.ContractorBids(context.Background(), Filter{Contractor: "Acme"}, 10)
	require.NoError(t, err)
	require.Len(t, bids, 3)

	assert.Equal(t, "C3", bids[0].ContractNumber)
	assert.Equal(t, "C2", bids[1].ContractNumber)
	assert.Equal(t, "C1", bids[2].ContractNumber)
	assert.False(t, bids[1].IsWinner)
	assert.Equal(t, 2, bids[1].BidderRank)
	require.NotNil(t, bids[0].County)
	assert.Equal(t, "Lake", *bids[0].County)
}

func TestRecentBids(t *testing.T) {
	e := newTestEngine(t, true)

	bids, err := e.RecentBids(context.Background(), Filter{ItemNumber: "40600100", ExactItem: true}, 2)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	assert.Equal(t, "C3", bids[0].ContractNumber)
	assert.Equal(t, "C2", bids[1].ContractNumber)
	assert.Equal(t, "Beta Builders", bids[1].BidderName)
	assert.InDelta(t, 60.0, bids[1].UnitPrice, 1e-9)
}

func TestRecentBids_IgnoresWinnersPolicy(t *testing.T) {
	e := newTestEngine(t, true)

	bids, err := e.RecentBids(context.Background(), Filter{ItemNumber: "40600100", ExactItem: true}, 50)
	require.NoError(t, err)
	assert.Len(t, bids, 5)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(3, 0))
	assert.Equal(t, 50.0, percent(1, 2))
	assert.Equal(t, 33.3, percent(1, 3))
}
