package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/recalc"
	"github.com/planforge/finmodel/store"
)

// CellEdit is one caller-supplied per-cell override in a recalc request,
// the raw (sheet, cell, value) shape the HTTP body carries before it is
// resolved to a canonical driver key via the project's catalog.
type CellEdit struct {
	Sheet string
	Cell  string
	Value float64
}

// RecalcRequest is the recalc endpoint's decoded body.
type RecalcRequest struct {
	ProjectID        string
	Parameters       map[string]float64
	EditedCells      []CellEdit
	Scenario         recalc.Scenario
	BestMultipliers  *recalc.Multipliers
	WorstMultipliers *recalc.Multipliers
}

// SourceParams records the fully-resolved driver map and any driver keys
// whose scenario-multiplier class was ambiguous, so the caller can show
// its work.
type SourceParams struct {
	Resolved      map[string]float64
	AmbiguousKeys []string
}

// ChartsData is the flattened, chart-library-friendly series view of a
// PLSummary.
type ChartsData struct {
	Years           []int
	Revenue         []int64
	OperatingProfit []int64
	CumulativeFCF   []int64
}

// RecalcResponse is the recalc endpoint's synchronous response body.
type RecalcResponse struct {
	PLSummary    []recalc.YearProjection
	KPIs         recalc.KPIs
	ChartsData   ChartsData
	Scenario     recalc.Scenario
	SourceParams SourceParams
}

// Recalc resolves parameters per spec.md §4.9's precedence chain and runs
// the five-year projection. It touches the store only to load the latest
// run's Phase-5 extractions and Phase-1 catalog — never an LLM.
func (c *Controller) Recalc(ctx context.Context, req RecalcRequest) (*RecalcResponse, error) {
	base := map[string]float64{}
	var catalog []agents.CatalogItem

	if req.ProjectID != "" {
		run, err := c.store.GetLatestRun(ctx, req.ProjectID)
		switch {
		case err == nil:
			if phase5Result, perr := c.store.GetPhaseResult(ctx, run.ID, Phase5); perr == nil {
				extractions, derr := rawToExtractions(phase5Result.Data)
				if derr != nil {
					return nil, derr
				}
				base = recalc.ResolveBaseParameters(toLabeledValues(extractions))
			} else if !errors.Is(perr, store.ErrNotFound) {
				return nil, perr
			}
			catalog, err = c.catalogFromPhase1(ctx, run.ID)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, store.ErrNotFound):
			// No run yet: resolve purely from caller-supplied parameters.
		default:
			return nil, err
		}
	}

	editedDrivers := resolveEditedCells(req.EditedCells, catalog)

	best := recalc.IdentityMultipliers()
	if req.BestMultipliers != nil {
		best = *req.BestMultipliers
	}
	worst := recalc.IdentityMultipliers()
	if req.WorstMultipliers != nil {
		worst = *req.WorstMultipliers
	}

	scenario := req.Scenario
	if scenario == "" {
		scenario = recalc.ScenarioBase
	}

	resolved, ambiguous := recalc.ResolveParameters(base, req.Parameters, editedDrivers, scenario, best, worst)
	years := recalc.ComputePL(resolved)
	kpis := recalc.ComputeKPIs(years)

	return &RecalcResponse{
		PLSummary:    years,
		KPIs:         kpis,
		ChartsData:   chartsFromYears(years),
		Scenario:     scenario,
		SourceParams: SourceParams{Resolved: resolved, AmbiguousKeys: ambiguous},
	}, nil
}

func resolveEditedCells(edits []CellEdit, catalog []agents.CatalogItem) map[string]float64 {
	if len(edits) == 0 {
		return nil
	}
	items := make([]recalc.LabeledValue, 0, len(edits))
	for _, e := range edits {
		label := ""
		if item := findCatalogItem(catalog, e.Sheet, e.Cell); item != nil {
			label = item.Label
		}
		items = append(items, recalc.LabeledValue{Label: label, Value: e.Value})
	}
	return recalc.MapToDriverKeys(items)
}

func findCatalogItem(catalog []agents.CatalogItem, sheet, cell string) *agents.CatalogItem {
	for i := range catalog {
		if catalog[i].Sheet == sheet && catalog[i].Cell == cell {
			return &catalog[i]
		}
	}
	return nil
}

func rawToExtractions(raw map[string]any) ([]agents.ExtractionItem, error) {
	var result agents.Phase5Result
	if err := rawDecode(raw, &result); err != nil {
		return nil, err
	}
	return result.Extractions, nil
}

func toLabeledValues(items []agents.ExtractionItem) []recalc.LabeledValue {
	out := make([]recalc.LabeledValue, 0, len(items))
	for _, item := range items {
		value, _ := toFloat(item.Value)
		out = append(out, recalc.LabeledValue{Label: item.Label, Concept: item.Concept, Value: value})
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func chartsFromYears(years []recalc.YearProjection) ChartsData {
	data := ChartsData{
		Years:           make([]int, len(years)),
		Revenue:         make([]int64, len(years)),
		OperatingProfit: make([]int64, len(years)),
		CumulativeFCF:   make([]int64, len(years)),
	}
	for i, y := range years {
		data.Years[i] = y.Year
		data.Revenue[i] = y.Revenue
		data.OperatingProfit[i] = y.OperatingProfit
		data.CumulativeFCF[i] = y.CumulativeFCF
	}
	return data
}
