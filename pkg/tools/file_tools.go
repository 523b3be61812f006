package tools

import (
	"context"
	"errors"
	"strings"

	"codegen/pkg/sandbox"
)

// FileStore is the sandboxed file access the coder tools need.
type FileStore interface {
	Root() string
	Read(rel string) (string, error)
	Write(rel, content string) (string, error)
	List(dir string) ([]string, error)
}

// sandboxResult turns sandbox violations into error results for the model and
// passes other failures through as Go errors.
func sandboxResult(content string, err error) (*ExecResult, error) {
	if err == nil {
		return &ExecResult{Content: content}, nil
	}
	var oob *sandbox.OutOfSandboxError
	var nad *sandbox.NotADirectoryError
	if errors.As(err, &oob) || errors.As(err, &nad) {
		return ErrorResult(err), nil
	}
	return nil, err
}

// ReadFileTool reads a file from the project root.
type ReadFileTool struct {
	store FileStore
}

// NewReadFileTool creates a new read_file tool.
func NewReadFileTool(store FileStore) *ReadFileTool {
	return &ReadFileTool{store: store}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReadFileTool) PromptDocumentation() string {
	return `- **read_file(path)** - Read the full content of a file relative to the project root
  - Returns an empty string when the file does not exist yet`
}

// Definition returns the tool definition for LLM.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read the full content of a file in the project. Returns an empty string if the file does not exist.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	return sandboxResult(t.store.Read(path))
}

// WriteFileTool replaces a file's full content.
type WriteFileTool struct {
	store FileStore
}

// NewWriteFileTool creates a new write_file tool.
func NewWriteFileTool(store FileStore) *WriteFileTool {
	return &WriteFileTool{store: store}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *WriteFileTool) PromptDocumentation() string {
	return `- **write_file(path, content)** - Write the COMPLETE content of a file relative to the project root
  - Replaces the whole file and creates parent directories as needed`
}

// Definition returns the tool definition for LLM.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Write the complete content of a file in the project, replacing any existing content. Parent directories are created.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "File path relative to the project root",
				},
				"content": {
					Type:        "string",
					Description: "The full new content of the file",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	return sandboxResult(t.store.Write(path, content))
}

// ListFilesTool lists every file under a project directory.
type ListFilesTool struct {
	store FileStore
}

// NewListFilesTool creates a new list_files tool.
func NewListFilesTool(store FileStore) *ListFilesTool {
	return &ListFilesTool{store: store}
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string {
	return ToolListFiles
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ListFilesTool) PromptDocumentation() string {
	return `- **list_files(directory=".")** - List all files under a directory, one project-relative path per line`
}

// Definition returns the tool definition for LLM.
func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListFiles,
		Description: "List all files under a directory of the project, recursively. Paths are relative to the project root.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"directory": {
					Type:        "string",
					Description: "Directory relative to the project root. Defaults to '.'",
				},
			},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ListFilesTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	dir, err := optionalStringArg(args, "directory", ".")
	if err != nil {
		return nil, err
	}
	files, err := t.store.List(dir)
	if err != nil {
		return sandboxResult("", err)
	}
	if len(files) == 0 {
		return &ExecResult{Content: NoFilesFound}, nil
	}
	return &ExecResult{Content: strings.Join(files, "\n")}, nil
}

// GetCurrentDirectoryTool reports the project root.
type GetCurrentDirectoryTool struct {
	store FileStore
}

// NewGetCurrentDirectoryTool creates a new get_current_directory tool.
func NewGetCurrentDirectoryTool(store FileStore) *GetCurrentDirectoryTool {
	return &GetCurrentDirectoryTool{store: store}
}

// Name returns the tool name.
func (t *GetCurrentDirectoryTool) Name() string {
	return ToolGetCurrentDirectory
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *GetCurrentDirectoryTool) PromptDocumentation() string {
	return `- **get_current_directory()** - Return the absolute path of the project root`
}

// Definition returns the tool definition for LLM.
func (t *GetCurrentDirectoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetCurrentDirectory,
		Description: "Return the absolute path of the project root directory.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *GetCurrentDirectoryTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	return &ExecResult{Content: t.store.Root()}, nil
}
