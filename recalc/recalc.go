// Package recalc implements the model's parameter resolution, five-year
// P&L computation, KPI derivation, and largest-remainder segment
// distribution. Every function here is pure: no store, no LLM client, no
// clock. Callers (package pipeline) own all I/O and pass in already-loaded
// values.
package recalc

import (
	"math"
	"sort"
	"strings"
)

// Scenario selects which multiplier set ResolveParameters applies.
type Scenario string

const (
	ScenarioBase  Scenario = "base"
	ScenarioBest  Scenario = "best"
	ScenarioWorst Scenario = "worst"
)

// Multipliers scales revenue-like and cost-like drivers under a scenario.
type Multipliers struct {
	Revenue float64
	Cost    float64
}

// IdentityMultipliers leaves every driver unchanged, the base scenario.
func IdentityMultipliers() Multipliers {
	return Multipliers{Revenue: 1, Cost: 1}
}

// LabeledValue is one (label, concept, value) triple a keyword table can
// classify into a canonical driver key. Phase-5 extractions and per-cell
// edits (joined against a catalog for their label) both reduce to this
// shape before MapToDriverKeys runs.
type LabeledValue struct {
	Label   string
	Concept string
	Value   float64
}

// Canonical driver keys the five-year computation reads.
const (
	DriverRevenueFY1  = "revenue_fy1"
	DriverGrowthRate  = "growth_rate"
	DriverCOGSRate    = "cogs_rate"
	DriverOpexBase    = "opex_base"
	DriverOpexGrowth  = "opex_growth"
)

// keywordTable maps a driver key to the substrings (checked in order) that
// identify it in a label or concept
// string. The first extraction whose text matches a still-unset driver
// wins; later matches for the same driver are ignored.
var keywordTable = []struct {
	key      string
	keywords []string
}{
	{DriverGrowthRate, []string{"growth rate", "growth_rate", "yoy growth"}},
	{DriverOpexGrowth, []string{"opex growth", "operating expense growth"}},
	{DriverCOGSRate, []string{"cogs", "cost of goods", "cost of sales"}},
	{DriverOpexBase, []string{"opex", "operating expense", "operating cost"}},
	{DriverRevenueFY1, []string{"revenue", "mrr", "recurring revenue", "sales"}},
}

// MapToDriverKeys classifies each item against the fixed keyword table and
// returns the resolved canonical driver map. Order of items matters: for a
// given driver key, the first matching item wins.
func MapToDriverKeys(items []LabeledValue) map[string]float64 {
	params := make(map[string]float64)
	for _, item := range items {
		text := strings.ToLower(item.Label + " " + item.Concept)
		for _, entry := range keywordTable {
			if _, ok := params[entry.key]; ok {
				continue
			}
			for _, kw := range entry.keywords {
				if strings.Contains(text, kw) {
					params[entry.key] = item.Value
					break
				}
			}
		}
	}
	return params
}

// ResolveBaseParameters is MapToDriverKeys specialized to a run's Phase-5
// extractions, step 1 of the resolution precedence.
func ResolveBaseParameters(extractions []LabeledValue) map[string]float64 {
	return MapToDriverKeys(extractions)
}

// classifyKey reports which driver class a canonical key belongs to for
// scenario multiplier purposes, and whether the key matched both classes'
// keywords (ambiguous — revenue classification wins, per decision recorded
// in DESIGN.md).
func classifyKey(key string) (class string, ambiguous bool) {
	lower := strings.ToLower(key)
	isRevenue := strings.Contains(lower, "revenue")
	isCost := strings.Contains(lower, "cost") || strings.Contains(lower, "cogs") || strings.Contains(lower, "opex")
	switch {
	case isRevenue && isCost:
		return "revenue", true
	case isRevenue:
		return "revenue", false
	case isCost:
		return "cost", false
	default:
		return "", false
	}
}

// ResolveParameters applies the full precedence chain: base, then
// overrides, then edited cells (already mapped to driver keys by the
// caller via MapToDriverKeys), then the scenario multiplier. It returns
// the resolved driver map plus any driver keys whose class was ambiguous
// under multiplier classification, for the caller to surface as
// source_params.ambiguous_keys.
func ResolveParameters(base, overrides, editedCells map[string]float64, scenario Scenario, best, worst Multipliers) (map[string]float64, []string) {
	params := make(map[string]float64, len(base))
	for k, v := range base {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	for k, v := range editedCells {
		params[k] = v
	}

	mult := IdentityMultipliers()
	switch scenario {
	case ScenarioBest:
		mult = best
	case ScenarioWorst:
		mult = worst
	}

	var ambiguous []string
	if scenario != ScenarioBase && scenario != "" {
		for k, v := range params {
			class, amb := classifyKey(k)
			if amb {
				ambiguous = append(ambiguous, k)
			}
			switch class {
			case "revenue":
				params[k] = v * mult.Revenue
			case "cost":
				params[k] = v * mult.Cost
			}
		}
	}
	sort.Strings(ambiguous)
	return params, ambiguous
}

// YearProjection is one year of the five-year P&L.
type YearProjection struct {
	Year            int   `json:"year"`
	Revenue         int64 `json:"revenue"`
	COGS            int64 `json:"cogs"`
	GrossProfit     int64 `json:"gross_profit"`
	Opex            int64 `json:"opex"`
	OperatingProfit int64 `json:"operating_profit"`
	FCF             int64 `json:"fcf"`
	CumulativeFCF   int64 `json:"cumulative_fcf"`
}

// ComputePL runs the five-year projection over resolved driver values.
// Missing drivers default to zero, which projects a flat, revenue-less
// model rather than panicking — the caller is responsible for warning the
// user when required drivers never resolved.
func ComputePL(params map[string]float64) []YearProjection {
	revenueFY1 := params[DriverRevenueFY1]
	growthRate := params[DriverGrowthRate]
	cogsRate := params[DriverCOGSRate]
	opexBase := params[DriverOpexBase]
	opexGrowth := params[DriverOpexGrowth]

	years := make([]YearProjection, 5)
	var cumulative float64
	for i := 0; i < 5; i++ {
		revenue := revenueFY1 * math.Pow(1+growthRate, float64(i))
		cogs := revenue * cogsRate
		grossProfit := revenue - cogs
		opex := opexBase * math.Pow(1+opexGrowth, float64(i))
		operatingProfit := grossProfit - opex
		fcf := operatingProfit * 0.9
		cumulative += fcf

		years[i] = YearProjection{
			Year:            i + 1,
			Revenue:         round(revenue),
			COGS:            round(cogs),
			GrossProfit:     round(grossProfit),
			Opex:            round(opex),
			OperatingProfit: round(operatingProfit),
			FCF:             round(fcf),
			CumulativeFCF:   round(cumulative),
		}
	}
	return years
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

// KPIs are the summary figures derived from a five-year projection. Year
// fields are nil when the underlying condition never holds across the
// projection window.
type KPIs struct {
	BreakEvenYear           *int     `json:"break_even_year"`
	CumulativeBreakEvenYear *int     `json:"cumulative_break_even_year"`
	RevenueCAGR             *float64 `json:"revenue_cagr"`
	FY5OpMargin             *float64 `json:"fy5_op_margin"`
}

// ComputeKPIs derives break-even years, revenue CAGR, and FY5 operating
// margin from a five-year projection.
func ComputeKPIs(years []YearProjection) KPIs {
	var kpi KPIs
	for _, y := range years {
		if y.OperatingProfit > 0 && kpi.BreakEvenYear == nil {
			yr := y.Year
			kpi.BreakEvenYear = &yr
		}
		if y.CumulativeFCF > 0 && kpi.CumulativeBreakEvenYear == nil {
			yr := y.Year
			kpi.CumulativeBreakEvenYear = &yr
		}
	}

	if len(years) == 5 && years[0].Revenue > 0 {
		cagr := math.Pow(float64(years[4].Revenue)/float64(years[0].Revenue), 1.0/4) - 1
		kpi.RevenueCAGR = &cagr
	}

	if len(years) == 5 && years[4].Revenue > 0 {
		margin := float64(years[4].OperatingProfit) / float64(years[4].Revenue)
		if margin > 0 {
			kpi.FY5OpMargin = &margin
		}
	}

	return kpi
}

// DistributeLargestRemainder splits total across n segments so each share
// is an integer and the shares sum exactly to total. The remainder is
// assigned one unit at a time to the first segments in order.
func DistributeLargestRemainder(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	base := total / int64(n)
	remainder := total - base*int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
	}
	for i := int64(0); i < remainder; i++ {
		shares[i]++
	}
	return shares
}
