// Package templates renders the embedded prompt templates used by each stage.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering. Each template reads only the
// fields it needs.
type TemplateData struct {
	UserPrompt        string `json:"user_prompt,omitempty"`
	PlanYAML          string `json:"plan_yaml,omitempty"`
	FilePath          string `json:"file_path,omitempty"`
	TaskDescription   string `json:"task_description,omitempty"`
	ExistingContent   string `json:"existing_content,omitempty"`
	ToolDocumentation string `json:"tool_documentation,omitempty"`
}

// StateTemplate names one embedded template.
type StateTemplate string

const (
	// PlannerTemplate asks for a ProjectPlan from the user request.
	PlannerTemplate StateTemplate = "planner.tpl.md"
	// ArchitectTemplate asks for the ordered TaskPlan of a ProjectPlan.
	ArchitectTemplate StateTemplate = "architect.tpl.md"
	// CoderSystemTemplate is the coding agent's system prompt.
	CoderSystemTemplate StateTemplate = "coder_system.tpl.md"
	// CoderTaskTemplate is the per-task user prompt of the coding agent.
	CoderTaskTemplate StateTemplate = "coder_task.tpl.md"
)

// Renderer handles template rendering for the pipeline stages.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[StateTemplate]*template.Template),
	}

	templateNames := []StateTemplate{
		PlannerTemplate,
		ArchitectTemplate,
		CoderSystemTemplate,
		CoderTaskTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	return r, nil
}

// MustRenderer is NewRenderer for package-level initialization; the templates are
// embedded so a parse failure is a build defect.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// GetAvailableTemplates returns a list of all available templates.
func (r *Renderer) GetAvailableTemplates() []StateTemplate {
	templates := make([]StateTemplate, 0, len(r.templates))
	for name := range r.templates {
		templates = append(templates, name)
	}
	return templates
}
