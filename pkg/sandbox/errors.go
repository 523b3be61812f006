package sandbox

import "fmt"

// OutOfSandboxError reports a path that resolves outside the sandbox root.
type OutOfSandboxError struct {
	Path string
	Root string
}

func (e *OutOfSandboxError) Error() string {
	return fmt.Sprintf("path %q resolves outside project root %s", e.Path, e.Root)
}

// NotADirectoryError reports a list target that is missing or not a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("%s is not a directory", e.Path)
}
