package httpapi

import (
	"net/http"

	"github.com/planforge/finmodel/pipeline"
	"github.com/planforge/finmodel/recalc"
)

type recalcCellEdit struct {
	Sheet string  `json:"sheet"`
	Cell  string  `json:"cell"`
	Value float64 `json:"value"`
}

type recalcRequestBody struct {
	ProjectID        string               `json:"project_id"`
	Parameters       map[string]float64   `json:"parameters"`
	EditedCells      []recalcCellEdit     `json:"edited_cells"`
	Scenario         recalc.Scenario      `json:"scenario"`
	BestMultipliers  *recalc.Multipliers  `json:"best_multipliers"`
	WorstMultipliers *recalc.Multipliers  `json:"worst_multipliers"`
}

func (s *Server) handleRecalc(w http.ResponseWriter, r *http.Request) {
	var body recalcRequestBody
	if !decodeBody(w, r, &body) {
		return
	}

	edits := make([]pipeline.CellEdit, 0, len(body.EditedCells))
	for _, e := range body.EditedCells {
		edits = append(edits, pipeline.CellEdit{Sheet: e.Sheet, Cell: e.Cell, Value: e.Value})
	}

	resp, err := s.controller.Recalc(r.Context(), pipeline.RecalcRequest{
		ProjectID:        body.ProjectID,
		Parameters:       body.Parameters,
		EditedCells:      edits,
		Scenario:         body.Scenario,
		BestMultipliers:  body.BestMultipliers,
		WorstMultipliers: body.WorstMultipliers,
	})
	if err != nil {
		writeErrFromErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pl_summary":    resp.PLSummary,
		"kpis":          resp.KPIs,
		"charts_data":   resp.ChartsData,
		"scenario":      resp.Scenario,
		"source_params": resp.SourceParams,
	})
}
