package tools

// Tool name constants.
const (
	// Coder file tools.
	ToolReadFile            = "read_file"
	ToolWriteFile           = "write_file"
	ToolListFiles           = "list_files"
	ToolGetCurrentDirectory = "get_current_directory"

	// Structured generation submit tools.
	ToolSubmitPlan     = "submit_plan"
	ToolSubmitTaskPlan = "submit_task_plan"
)

// NoFilesFound is the list_files answer for an empty directory tree.
const NoFilesFound = "No files found."
