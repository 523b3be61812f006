package tools

// SubmitPlanDefinition is the terminal tool through which the model returns a project plan.
func SubmitPlanDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSubmitPlan,
		Description: "Submit the complete engineering project plan. Call this exactly once with the full plan.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"name": {
					Type:        "string",
					Description: "Short name of the application",
				},
				"description": {
					Type:        "string",
					Description: "One-paragraph description of what the application does",
				},
				"techstack": {
					Type:        "string",
					Description: "Languages, frameworks and libraries to use (e.g., 'HTML, CSS, JavaScript')",
				},
				"features": {
					Type:        "array",
					Description: "User-facing features the application must provide",
					Items: &Property{
						Type: "string",
					},
				},
				"files": {
					Type:        "array",
					Description: "Every file the project needs",
					Items: &Property{
						Type: "object",
						Properties: map[string]*Property{
							"path": {
								Type:        "string",
								Description: "File path relative to the project root",
							},
							"purpose": {
								Type:        "string",
								Description: "What this file is responsible for",
							},
						},
						Required: []string{"path", "purpose"},
					},
				},
			},
			Required: []string{"name", "description", "techstack", "features", "files"},
		},
	}
}

// SubmitTaskPlanDefinition is the terminal tool through which the model returns the ordered task list.
func SubmitTaskPlanDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolSubmitTaskPlan,
		Description: "Submit the ordered implementation steps. Call this exactly once with every step.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"implementation_steps": {
					Type:        "array",
					Description: "Implementation steps in execution order, dependencies first",
					Items: &Property{
						Type: "object",
						Properties: map[string]*Property{
							"file_path": {
								Type:        "string",
								Description: "The one file this step modifies, relative to the project root",
							},
							"task_description": {
								Type:        "string",
								Description: "Self-contained description of exactly what to implement in this file",
							},
						},
						Required: []string{"file_path", "task_description"},
					},
				},
			},
			Required: []string{"implementation_steps"},
		},
	}
}
