package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bid-intel/internal/apperr"
)

func TestContractDetail_CrossTab(t *testing.T) {
	e := newTestEngine(t, true)

	d, err := e.ContractDetail(context.Background(), "C1")
	require.NoError(t, err)

	assert.Equal(t, "C1", d.Contract.ContractNumber)
	assert.Equal(t, "2023-03-10", d.Contract.LettingDate)
	require.NotNil(t, d.Contract.County)
	assert.Equal(t, "Cook", *d.Contract.County)
	assert.Equal(t, 2, d.Contract.NumBidders)

	require.Len(t, d.Bidders, 2)
	assert.Equal(t, "Acme Paving", d.Bidders[0].Name)
	assert.True(t, d.Bidders[0].IsWinner)
	assert.Equal(t, "Beta Builders", d.Bidders[1].Name)
	assert.Equal(t, 2, d.Bidders[1].Rank)

	require.Len(t, d.Items, 5)
	want := []string{"40600100", "40600200", "50100100", "50200100", "70100100"}
	for i, item := range d.Items {
		assert.Equal(t, want[i], item.ItemNumber)
		assert.Len(t, item.Bids, 2, item.ItemNumber)
	}

	first := d.Items[0]
	require.NotNil(t, first.EngineersEstUnitPrice)
	assert.InDelta(t, 85.0, *first.EngineersEstUnitPrice, 1e-9)
	assert.InDelta(t, 80.0, first.Bids["Acme Paving"].UnitPrice, 1e-9)
	assert.True(t, first.Bids["Acme Paving"].IsLowItem)
	assert.InDelta(t, 9000.0, first.Bids["Beta Builders"].Extension, 1e-9)
	assert.Equal(t, 2, first.Bids["Beta Builders"].Rank)

	assert.True(t, d.Items[2].Bids["Beta Builders"].IsLowItem)
	assert.False(t, d.Items[2].Bids["Beta Builders"].IsWinner)
}

func TestContractDetail_NotFound(t *testing.T) {
	e := newTestEngine(t, true)

	_, err := e.ContractDetail(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestContractDetail_EmptyNumber(t *testing.T) {
	e := newTestEngine(t, true)

	_, err := e.ContractDetail(context.Background(), "  ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCompareGeo(t *testing.T) {
	e := newTestEngine(t, false)

	cmp, err := e.CompareGeo(context.Background(), "40600100", Filter{}, DimCounty)
	require.NoError(t, err)

	require.NotNil(t, cmp.Overall)
	assert.Equal(t, DimCounty, cmp.Dimension)
	require.Len(t, cmp.Groups, 1)

	g := cmp.Groups[0]
	assert.Equal(t, "Cook", g.Key)
	require.NotNil(t, g.DeltaPct)
	// Cook 68.125 vs overall 71.667
	assert.InDelta(t, -4.9, *g.DeltaPct, 1e-9)
}

func TestCompareGeo_UnknownItem(t *testing.T) {
	e := newTestEngine(t, false)

	cmp, err := e.CompareGeo(context.Background(), "99999999", Filter{}, DimDistrict)
	require.NoError(t, err)
	assert.Nil(t, cmp.Overall)
	assert.Empty(t, cmp.Groups)
}
