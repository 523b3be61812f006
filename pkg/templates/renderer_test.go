package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	expected := []StateTemplate{PlannerTemplate, ArchitectTemplate, CoderSystemTemplate, CoderTaskTemplate}
	assert.ElementsMatch(t, expected, renderer.GetAvailableTemplates())

	for _, name := range expected {
		if _, err := renderer.Render(name, &TemplateData{}); err != nil {
			t.Errorf("Failed to render template %s: %v", name, err)
		}
	}
}

func TestRenderPlannerEmbedsRequestVerbatim(t *testing.T) {
	renderer := MustRenderer()
	request := "Build a calculator with {braces} and <html>"

	out, err := renderer.Render(PlannerTemplate, &TemplateData{UserPrompt: request})
	require.NoError(t, err)
	assert.Contains(t, out, request)
	assert.Contains(t, out, "submit_plan")
}

func TestRenderArchitectCarriesRules(t *testing.T) {
	out, err := MustRenderer().Render(ArchitectTemplate, &TemplateData{PlanYAML: "name: calc\n"})
	require.NoError(t, err)
	assert.Contains(t, out, "name: calc")
	assert.Contains(t, out, "dependencies are implemented first")
	assert.Contains(t, out, "SELF-CONTAINED")
}

func TestRenderCoderTask(t *testing.T) {
	renderer := MustRenderer()

	out, err := renderer.Render(CoderTaskTemplate, &TemplateData{
		TaskDescription: "Implement add()",
		FilePath:        "calc.py",
		ExistingContent: "# stub",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Task: Implement add()")
	assert.Contains(t, out, "File: calc.py")
	assert.Contains(t, out, "# stub")
	assert.Contains(t, out, "write_file")

	out, err = renderer.Render(CoderTaskTemplate, &TemplateData{TaskDescription: "x", FilePath: "new.py"})
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist yet")
}

func TestRenderCoderSystemListsTools(t *testing.T) {
	out, err := MustRenderer().Render(CoderSystemTemplate, &TemplateData{ToolDocumentation: "- **read_file(path)**"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "read_file(path)"))
	assert.Contains(t, out, "FULL file content")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := MustRenderer().Render("nope.tpl.md", &TemplateData{})
	assert.Error(t, err)
}
