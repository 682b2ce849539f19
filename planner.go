package vitalog

import (
	"bytes"
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultReplanMarker is the sentinel phrase the analysis model emits when
// the gathered material is insufficient. Everything after it is read as
// breakdown steps for a replacement plan. Any distinct phrase works; this is
// a prompt detail, not a structural contract — the executor only ever sees
// the structured signal on the accumulator.
const DefaultReplanMarker = "ADDITIONAL RESEARCH REQUIRED:"

const planSystemPrompt = "You are the research planning component of a personal health journal. " +
	"You are precise, you ground every claim in gathered evidence, and you follow output format instructions exactly."

// Planner is the plan source: it authors the initial plan for a job and,
// when invoked by the analyze handler, a replacement plan from progress
// assessment text. Internally each plan is two chained model calls: free-text
// breakdown steps, then conversion into the strict action-list structure.
type Planner struct {
	llm    Completer
	schema *jsonschema.Schema
	marker string
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithReplanMarker overrides the sentinel phrase that triggers re-planning.
func WithReplanMarker(marker string) PlannerOption {
	return func(p *Planner) {
		p.marker = marker
	}
}

// NewPlanner creates a plan source over the given model router.
func NewPlanner(llm Completer, options ...PlannerOption) (*Planner, error) {
	schema, err := compilePlanSchema()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile plan schema")
	}

	p := &Planner{
		llm:    llm,
		schema: schema,
		marker: DefaultReplanMarker,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Marker returns the re-planning sentinel phrase in use.
func (p *Planner) Marker() string {
	return p.marker
}

// CreatePlan authors the initial plan for a user query.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*Plan, error) {
	var buf bytes.Buffer
	if err := plannerTmpl.Execute(&buf, plannerTemplateData{Query: query}); err != nil {
		return nil, goerr.Wrap(err, "failed to render planner prompt")
	}

	steps, err := p.llm.Complete(ctx, buf.String(), planSystemPrompt)
	if err != nil {
		return nil, goerr.Wrap(err, "breakdown call failed")
	}

	plan, err := p.convertSteps(ctx, steps)
	if err != nil {
		return nil, err
	}

	LoggerFromContext(ctx).Info("plan created",
		"actions", plan.Len(),
		"query", query)
	return plan, nil
}

// convertSteps turns free-text breakdown steps into a validated Plan. The
// model output must satisfy the action-list schema and the plan acceptance
// rules; anything else is a parse failure, never a partial plan.
func (p *Planner) convertSteps(ctx context.Context, steps string) (*Plan, error) {
	var buf bytes.Buffer
	if err := convertTmpl.Execute(&buf, convertTemplateData{Steps: steps}); err != nil {
		return nil, goerr.Wrap(err, "failed to render convert prompt")
	}

	out, err := p.llm.CompleteJSON(ctx, buf.String(), planSystemPrompt, p.schema)
	if err != nil {
		return nil, goerr.Wrap(err, "structure conversion call failed")
	}

	plan, err := ParsePlan([]byte(out))
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidPlanOutput, "structure conversion rejected",
			goerr.V("cause", err.Error()))
	}
	return plan, nil
}

// Assessment is the structured result of a progress analysis. Replan is
// non-nil when the model decided more work is needed.
type Assessment struct {
	Text   string
	Replan *Plan
}

// Analyze asks the model whether current findings are sufficient. When the
// output carries the re-planning marker, the trailing breakdown steps are
// converted into a replacement plan.
func (p *Planner) Analyze(ctx context.Context, directive string, acc *Accumulator) (*Assessment, error) {
	var buf bytes.Buffer
	data := findingTemplateData{
		Directive: directive,
		Summary:   acc.Summary(),
		Marker:    p.marker,
	}
	if err := analyzeTmpl.Execute(&buf, data); err != nil {
		return nil, goerr.Wrap(err, "failed to render analyze prompt")
	}

	text, err := p.llm.Complete(ctx, buf.String(), planSystemPrompt)
	if err != nil {
		return nil, goerr.Wrap(err, "analysis call failed")
	}

	idx := strings.Index(text, p.marker)
	if idx < 0 {
		return &Assessment{Text: text}, nil
	}

	steps := strings.TrimSpace(text[idx+len(p.marker):])
	plan, err := p.convertSteps(ctx, steps)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to author replacement plan")
	}

	LoggerFromContext(ctx).Info("analysis requested re-planning",
		"replacement_actions", plan.Len())
	return &Assessment{Text: text, Replan: plan}, nil
}

// Synthesize combines the accumulated findings into a narrative.
func (p *Planner) Synthesize(ctx context.Context, directive string, acc *Accumulator) (string, error) {
	var buf bytes.Buffer
	data := findingTemplateData{Directive: directive, Summary: acc.Summary()}
	if err := synthesizeTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render synthesize prompt")
	}

	text, err := p.llm.Complete(ctx, buf.String(), planSystemPrompt)
	if err != nil {
		return "", goerr.Wrap(err, "synthesis call failed")
	}
	return text, nil
}

// Respond produces the final user-facing text from the accumulated state.
func (p *Planner) Respond(ctx context.Context, directive string, acc *Accumulator) (string, error) {
	var buf bytes.Buffer
	data := findingTemplateData{Directive: directive, Summary: acc.Summary()}
	if err := respondTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render respond prompt")
	}

	text, err := p.llm.Complete(ctx, buf.String(), planSystemPrompt)
	if err != nil {
		return "", goerr.Wrap(err, "response call failed")
	}
	return text, nil
}

func compilePlanSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse embedded plan schema")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan_schema.json", doc); err != nil {
		return nil, goerr.Wrap(err, "failed to register plan schema")
	}

	schema, err := compiler.Compile("plan_schema.json")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile plan schema")
	}
	return schema, nil
}
