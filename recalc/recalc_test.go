package recalc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planforge/finmodel/recalc"
)

func TestMapToDriverKeys_ClassifiesByKeyword(t *testing.T) {
	items := []recalc.LabeledValue{
		{Label: "Monthly Recurring Revenue", Concept: "mrr", Value: 10000},
		{Label: "YoY Growth Rate", Concept: "growth_rate", Value: 0.1},
		{Label: "COGS", Concept: "cost_of_goods", Value: 0.3},
		{Label: "Operating Expense", Concept: "opex", Value: 4000},
	}

	params := recalc.MapToDriverKeys(items)
	require.Equal(t, 10000.0, params[recalc.DriverRevenueFY1])
	require.Equal(t, 0.1, params[recalc.DriverGrowthRate])
	require.Equal(t, 0.3, params[recalc.DriverCOGSRate])
	require.Equal(t, 4000.0, params[recalc.DriverOpexBase])
}

func TestMapToDriverKeys_FirstMatchWins(t *testing.T) {
	items := []recalc.LabeledValue{
		{Label: "Revenue", Concept: "", Value: 1000},
		{Label: "Total Sales", Concept: "", Value: 9999},
	}

	params := recalc.MapToDriverKeys(items)
	require.Equal(t, 1000.0, params[recalc.DriverRevenueFY1])
}

func TestResolveParameters_PrecedenceLaterWins(t *testing.T) {
	base := map[string]float64{recalc.DriverRevenueFY1: 1000, recalc.DriverGrowthRate: 0.1}
	overrides := map[string]float64{recalc.DriverRevenueFY1: 2000}
	edits := map[string]float64{recalc.DriverGrowthRate: 0.2}

	resolved, ambiguous := recalc.ResolveParameters(base, overrides, edits, recalc.ScenarioBase, recalc.IdentityMultipliers(), recalc.IdentityMultipliers())
	require.Empty(t, ambiguous)
	require.Equal(t, 2000.0, resolved[recalc.DriverRevenueFY1])
	require.Equal(t, 0.2, resolved[recalc.DriverGrowthRate])
}

func TestResolveParameters_BestScenarioScalesByClass(t *testing.T) {
	base := map[string]float64{recalc.DriverRevenueFY1: 1000, recalc.DriverCOGSRate: 0.3}
	best := recalc.Multipliers{Revenue: 1.2, Cost: 0.9}

	resolved, ambiguous := recalc.ResolveParameters(base, nil, nil, recalc.ScenarioBest, best, recalc.IdentityMultipliers())
	require.Empty(t, ambiguous)
	require.InDelta(t, 1200.0, resolved[recalc.DriverRevenueFY1], 0.001)
	require.InDelta(t, 0.27, resolved[recalc.DriverCOGSRate], 0.001)
}

func TestResolveParameters_AmbiguousKeyClassifiesAsRevenue(t *testing.T) {
	base := map[string]float64{"revenue_cost_blend": 100}
	best := recalc.Multipliers{Revenue: 2, Cost: 0.5}

	resolved, ambiguous := recalc.ResolveParameters(base, nil, nil, recalc.ScenarioBest, best, recalc.IdentityMultipliers())
	require.Equal(t, []string{"revenue_cost_blend"}, ambiguous)
	require.Equal(t, 200.0, resolved["revenue_cost_blend"])
}

func TestComputePL_FiveYearProjection(t *testing.T) {
	params := map[string]float64{
		recalc.DriverRevenueFY1: 100000,
		recalc.DriverGrowthRate: 0.1,
		recalc.DriverCOGSRate:   0.4,
		recalc.DriverOpexBase:   50000,
		recalc.DriverOpexGrowth: 0.05,
	}

	years := recalc.ComputePL(params)
	require.Len(t, years, 5)
	require.Equal(t, int64(100000), years[0].Revenue)
	require.Equal(t, int64(40000), years[0].COGS)
	require.Equal(t, int64(60000), years[0].GrossProfit)
	require.Equal(t, int64(10000), years[0].OperatingProfit)

	require.Equal(t, years[0].FCF, years[0].CumulativeFCF)
	require.Equal(t, years[0].CumulativeFCF+years[1].FCF, years[1].CumulativeFCF)
}

func TestComputeKPIs_BreakEvenAndCAGR(t *testing.T) {
	params := map[string]float64{
		recalc.DriverRevenueFY1: 100000,
		recalc.DriverGrowthRate: 0.2,
		recalc.DriverCOGSRate:   0.3,
		recalc.DriverOpexBase:   80000,
		recalc.DriverOpexGrowth: 0.0,
	}
	years := recalc.ComputePL(params)
	kpi := recalc.ComputeKPIs(years)

	require.NotNil(t, kpi.RevenueCAGR)
	require.InDelta(t, 0.2, *kpi.RevenueCAGR, 0.001)
	require.NotNil(t, kpi.BreakEvenYear)
}

func TestComputeKPIs_NoBreakEvenYieldsNilYears(t *testing.T) {
	params := map[string]float64{
		recalc.DriverRevenueFY1: 1000,
		recalc.DriverGrowthRate: 0,
		recalc.DriverCOGSRate:   0.5,
		recalc.DriverOpexBase:   10000,
		recalc.DriverOpexGrowth: 0,
	}
	years := recalc.ComputePL(params)
	kpi := recalc.ComputeKPIs(years)

	require.Nil(t, kpi.BreakEvenYear)
	require.Nil(t, kpi.CumulativeBreakEvenYear)
	require.Nil(t, kpi.FY5OpMargin)
}

func TestDistributeLargestRemainder_SumsExactly(t *testing.T) {
	shares := recalc.DistributeLargestRemainder(100, 3)
	require.Equal(t, []int64{34, 33, 33}, shares)

	var sum int64
	for _, s := range shares {
		sum += s
	}
	require.Equal(t, int64(100), sum)
}

func TestDistributeLargestRemainder_ZeroSegmentsReturnsNil(t *testing.T) {
	require.Nil(t, recalc.DistributeLargestRemainder(100, 0))
}
