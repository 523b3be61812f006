// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X codegen/pkg/version.Version=v0.3.0 -X codegen/pkg/version.Commit=$(git rev-parse --short HEAD)" ./cmd/codegen
package version

import "fmt"

//nolint:gochecknoglobals // set at link time
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line form printed by `codegen --version`.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
