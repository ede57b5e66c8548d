package promptregistry

// Prompt keys are stable identifiers the store's prompt_versions table and
// the pipeline controller both reference; renaming a phase must not rename
// its key.
const (
	KeyPhase1Scan          = "phase1.scan.system"
	KeyPhase2BusinessModel = "phase2.business_model.system"
	KeyPhase3TemplateMap   = "phase3.template_map.system"
	KeyPhase4ModelDesign   = "phase4.model_design.system"
	KeyPhase5ParamExtract  = "phase5.param_extract.system"
)

// RegisterDefaults installs every phase's built-in system prompt. Called
// once at process startup before any Resolve call.
func RegisterDefaults(r *Registry) {
	r.RegisterBuiltin(Definition{
		Key:         KeyPhase1Scan,
		DisplayName: "Phase 1 — Document Scan",
		Phase:       "phase1",
		Type:        PromptTypeSystem,
		Default:     phase1ScanPrompt(),
	})
	r.RegisterBuiltin(Definition{
		Key:         KeyPhase2BusinessModel,
		DisplayName: "Phase 2 — Business Model Analysis",
		Phase:       "phase2",
		Type:        PromptTypeSystem,
		Default:     phase2BusinessModelPrompt(),
	})
	r.RegisterBuiltin(Definition{
		Key:         KeyPhase3TemplateMap,
		DisplayName: "Phase 3 — Template Mapping",
		Phase:       "phase3",
		Type:        PromptTypeSystem,
		Default:     phase3TemplateMapPrompt(),
	})
	r.RegisterBuiltin(Definition{
		Key:         KeyPhase4ModelDesign,
		DisplayName: "Phase 4 — Model Design",
		Phase:       "phase4",
		Type:        PromptTypeSystem,
		Default:     phase4ModelDesignPrompt(),
	})
	r.RegisterBuiltin(Definition{
		Key:         KeyPhase5ParamExtract,
		DisplayName: "Phase 5 — Parameter Extraction",
		Phase:       "phase5",
		Type:        PromptTypeSystem,
		Default:     phase5ParamExtractPrompt(),
	})
}

func phase1ScanPrompt() string {
	return `You are scanning an uploaded business document to build a catalog of the
financial concepts it discusses.

## Objective

Read the document text and produce a catalog of financial concepts
(revenue lines, cost lines, headcount, pricing, segments, anything with a
numeric value or clearly implied numeric value) along with a short summary
of what the document covers.

## Output Format

Respond with a single JSON object:

` + "```json" + `
{
  "catalog": [
    {"concept": "monthly_recurring_revenue", "label": "MRR", "category": "revenue"}
  ],
  "document_summary": "2-3 sentence summary of the document's content and purpose"
}
` + "```" + `

Do not invent concepts the document does not mention. An empty catalog is
acceptable for a document with no financial content.`
}

func phase2BusinessModelPrompt() string {
	return `You are analyzing a business document to describe its underlying business
model: how it makes money, who its customers are, and what distinct
segments it operates in.

## Objective

Identify the customer segments the business serves. Every business has at
least one segment — a document describing a single product for a single
market still has one segment worth naming. Never return an empty segments
list; if the document gives no explicit segmentation, infer the single
most defensible segment from its content and mark it as inferred.

## Output Format

Respond with one or more candidate proposals. Every business has at least
one segment — if the document gives no explicit segmentation, infer the
single most defensible segment and mark its source as "inferred". Never
return a proposal with an empty segments list.

` + "```json" + `
{
  "proposals": [
    {
      "industry": "...",
      "model_type": "subscription | usage-based | one-time | ...",
      "executive_summary": "how the business generates revenue",
      "segments": [
        {"name": "enterprise", "description": "...", "revenue_drivers": ["..."], "key_assumptions": ["..."], "source": "document"}
      ],
      "shared_costs": ["..."],
      "risks": ["..."],
      "time_horizon": "5 years",
      "currency": "USD"
    }
  ]
}
` + "```" + ``
}

func phase3TemplateMapPrompt() string {
	return `You are mapping a financial-model spreadsheet template's sheets to the
business segments a prior phase identified.

## Objective

For each sheet in the template, describe its overall structure and decide
which segment it primarily represents and what purpose it serves. purpose
must be one of: revenue_model, cost_detail, pl_summary, assumptions,
headcount, capex, other. The chosen proposal's segments may be missing or
empty — in that case map sheets by purpose alone and leave segment blank.

## Output Format

` + "```json" + `
{
  "overall_structure": "brief description of how the template's sheets relate",
  "sheet_mappings": [
    {"sheet": "Revenue", "segment": "enterprise", "purpose": "revenue_model"}
  ],
  "suggestions": ["anything the template seems to need that the catalog doesn't cover"]
}
` + "```" + ``
}

func phase4ModelDesignPrompt() string {
	return `You are assigning specific spreadsheet cells to the financial concepts a
prior phase mapped to template sheets, producing one concrete cell
assignment per concept the template can place.

## Objective

For every sheet mapping, decide the exact cell each concept's value
belongs in, the label it should carry, and the category (block grouping)
it falls under. Flag any template cell that looks like it needs a value
but has no corresponding concept.

## Output Format

` + "```json" + `
{
  "cell_assignments": [
    {"sheet": "Revenue", "cell": "B4", "label": "Monthly Recurring Revenue", "category": "revenue", "formula": null}
  ],
  "unmapped_cells": [{"sheet": "Revenue", "cell": "C9", "reason": "no catalog concept found"}],
  "warnings": []
}
` + "```" + ``
}

func phase5ParamExtractPrompt() string {
	return `You are extracting concrete parameter values for a financial model's cell
assignments, grounding every value in a verbatim quote from the source
document wherever the document actually states one.

## Objective

For each cell assignment, find the value the document supports. Quote the
exact sentence or phrase the value comes from in "evidence". If the
document does not state a value, say so rather than inventing one — a
later guard stage penalizes unsupported values, it does not reward
confident-sounding guesses.

## Output Format

` + "```json" + `
{
  "extractions": [
    {
      "sheet": "Revenue", "cell": "B4", "label": "MRR", "concept": "monthly_recurring_revenue",
      "value": 42000, "unit": "USD", "source": "document",
      "confidence": 0.9, "evidence": "quoted sentence from the document",
      "segment": "enterprise", "period": "FY1"
    }
  ],
  "unmapped_cells": [],
  "warnings": [],
  "stats": {"total": 1, "from_document": 1, "inferred": 0, "default": 0}
}
` + "```" + ``
}
