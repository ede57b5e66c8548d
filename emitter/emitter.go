// Package emitter resolves a run's phase results into the slot map a
// spreadsheet template writer fills in. Per spec.md's scoping the actual
// writer is an external collaborator; this package only does the
// resolution and distribution math, handing the finished slots to
// whatever TemplateWriter the caller configured.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planforge/finmodel/agents"
	"github.com/planforge/finmodel/recalc"
	"github.com/planforge/finmodel/store"
)

const (
	phase2 = "phase2"
	phase3 = "phase3"
	phase4 = "phase4"
	phase5 = "phase5"
)

// TemplateWriter is the external generator that turns a filled slot map
// into an actual spreadsheet artifact and returns where it landed.
type TemplateWriter interface {
	WriteWorkbook(ctx context.Context, slots map[string]any) (artifactPath string, err error)
}

// Service resolves segment count and adopted add-ons from a run's phase
// results, computes the largest-remainder revenue distribution across
// segments, fills the slot map, and delegates to a TemplateWriter.
type Service struct {
	store  store.Store
	writer TemplateWriter
}

// NewService wires a Service against a store and a template writer.
func NewService(s store.Store, writer TemplateWriter) *Service {
	return &Service{store: s, writer: writer}
}

// Export builds the slot map for run and writes the workbook. The returned
// map becomes the phase-6 PhaseResult and the completed job's ResultData,
// so it carries enough for the download endpoint to locate the artifact
// without a second store round trip.
func (s *Service) Export(ctx context.Context, projectID string, run *store.Run) (map[string]any, error) {
	segments, err := s.resolveSegments(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	addOns, err := s.resolveAddOns(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.resolveCellAssignments(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	extractions, err := s.resolveExtractions(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	base := recalc.ResolveBaseParameters(toLabeledValues(extractions))
	years := recalc.ComputePL(base)
	kpis := recalc.ComputeKPIs(years)

	segmentCount := len(segments)
	if segmentCount == 0 {
		segmentCount = 1
	}
	distribution := make(map[int][]int64, len(years))
	for _, y := range years {
		distribution[y.Year] = recalc.DistributeLargestRemainder(y.Revenue, segmentCount)
	}

	slots := map[string]any{
		"project_id":           projectID,
		"segments":             segments,
		"add_ons":              addOns,
		"cell_assignments":     assignments,
		"extractions":          extractions,
		"pl_summary":           years,
		"kpis":                 kpis,
		"segment_distribution": distribution,
	}

	artifactPath, err := s.writer.WriteWorkbook(ctx, slots)
	if err != nil {
		return nil, fmt.Errorf("emitter: write workbook: %w", err)
	}

	return map[string]any{
		"artifact_path": artifactPath,
		"segment_count": segmentCount,
		"pl_summary":    years,
		"kpis":          kpis,
	}, nil
}

// resolveSegments reads the first (adopted) proposal's segments from
// Phase 2. A project that never ran Phase 2 exports with a single implicit
// segment rather than failing — an export is meant to work from whatever
// the run has.
func (s *Service) resolveSegments(ctx context.Context, runID string) ([]agents.Segment, error) {
	pr, err := s.store.GetPhaseResult(ctx, runID, phase2)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var result agents.Phase2Result
	if err := decodeRaw(pr.Data, &result); err != nil {
		return nil, err
	}
	if len(result.Proposals) == 0 {
		return nil, nil
	}
	return result.Proposals[0].Segments, nil
}

func (s *Service) resolveAddOns(ctx context.Context, runID string) ([]string, error) {
	pr, err := s.store.GetPhaseResult(ctx, runID, phase3)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var result agents.Phase3Result
	if err := decodeRaw(pr.Data, &result); err != nil {
		return nil, err
	}
	return result.Suggestions, nil
}

func (s *Service) resolveCellAssignments(ctx context.Context, runID string) ([]agents.CellAssignment, error) {
	pr, err := s.store.GetPhaseResult(ctx, runID, phase4)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var result agents.Phase4Result
	if err := decodeRaw(pr.Data, &result); err != nil {
		return nil, err
	}
	return result.CellAssignments, nil
}

func (s *Service) resolveExtractions(ctx context.Context, runID string) ([]agents.ExtractionItem, error) {
	pr, err := s.store.GetPhaseResult(ctx, runID, phase5)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var result agents.Phase5Result
	if err := decodeRaw(pr.Data, &result); err != nil {
		return nil, err
	}
	return result.Extractions, nil
}

func decodeRaw(raw map[string]any, dest any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("emitter: marshal phase result: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("emitter: decode phase result: %w", err)
	}
	return nil
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
