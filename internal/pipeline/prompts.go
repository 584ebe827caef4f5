package pipeline

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"job-pipeline/internal/domain/job"
	"job-pipeline/internal/infrastructure/llm"

	"github.com/sashabaranov/go-openai/jsonschema"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

const systemMessage = "You extract structured data from job board and job posting pages. " +
	"Only use information present in the content. Leave a field empty when the content does not state it."

type promptData struct {
	Company   string
	CareerURL string
	Title     string
	URL       string
	Content   string
	MaxItems  int
}

type discoveredListing struct {
	Title string `json:"title" description:"Job title as shown on the page"`
	URL   string `json:"url" description:"Link to the job posting"`
}

type discoveryResponse struct {
	Jobs []discoveredListing `json:"jobs"`
}

// stagePrompt bundles the template and response schema for one stage.
type stagePrompt struct {
	name   string
	file   string
	schema *jsonschema.Definition
}

var stagePrompts = map[job.StageID]stagePrompt{}

func init() {
	register := func(stage job.StageID, name string, schema *jsonschema.Definition, err error) {
		if err != nil {
			panic(fmt.Sprintf("schema for %s: %v", stage.Tag(), err))
		}
		stagePrompts[stage] = stagePrompt{name: name, file: stage.Tag() + ".tmpl", schema: schema}
	}
	s1, err := llm.SchemaFor[discoveryResponse]()
	register(job.StageDiscovery, "job_listings", s1, err)
	s2, err := llm.SchemaFor[job.MetadataUpdate]()
	register(job.StageMetadata, "job_metadata", s2, err)
	s3, err := llm.SchemaFor[job.SkillsUpdate]()
	register(job.StageSkills, "job_skills", s3, err)
	s4, err := llm.SchemaFor[job.TechnologyUpdate]()
	register(job.StageTechnology, "job_technologies", s4, err)
}

func buildRequest(stage job.StageID, data promptData) (llm.Request, error) {
	p, ok := stagePrompts[stage]
	if !ok {
		return llm.Request{}, fmt.Errorf("no prompt for stage %s", stage.Tag())
	}
	if data.MaxItems == 0 {
		data.MaxItems = job.MaxListItems
	}
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, p.file, data); err != nil {
		return llm.Request{}, fmt.Errorf("render %s prompt: %w", stage.Tag(), err)
	}
	return llm.Request{
		Name:          p.name,
		SystemMessage: systemMessage,
		Prompt:        buf.String(),
		Schema:        p.schema,
	}, nil
}
