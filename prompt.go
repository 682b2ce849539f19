package vitalog

import (
	_ "embed"
	"text/template"
)

//go:embed templates/planner_prompt.md
var plannerPromptTemplate string

//go:embed templates/convert_prompt.md
var convertPromptTemplate string

//go:embed templates/analyze_prompt.md
var analyzePromptTemplate string

//go:embed templates/synthesize_prompt.md
var synthesizePromptTemplate string

//go:embed templates/respond_prompt.md
var respondPromptTemplate string

//go:embed templates/plan_schema.json
var planSchemaJSON string

var (
	plannerTmpl    *template.Template
	convertTmpl    *template.Template
	analyzeTmpl    *template.Template
	synthesizeTmpl *template.Template
	respondTmpl    *template.Template
)

func init() {
	plannerTmpl = template.Must(template.New("planner").Parse(plannerPromptTemplate))
	convertTmpl = template.Must(template.New("convert").Parse(convertPromptTemplate))
	analyzeTmpl = template.Must(template.New("analyze").Parse(analyzePromptTemplate))
	synthesizeTmpl = template.Must(template.New("synthesize").Parse(synthesizePromptTemplate))
	respondTmpl = template.Must(template.New("respond").Parse(respondPromptTemplate))
}

type plannerTemplateData struct {
	Query string
}

type convertTemplateData struct {
	Steps string
}

type findingTemplateData struct {
	Directive string
	Summary   string
	Marker    string
}
