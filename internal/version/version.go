package version

// Version is the current version of visudo
// Set via ldflags during build: -X github.com/i9wa4/visudo/internal/version.Version=x.y.z
var Version = "dev"

// Commit is the git commit hash
// Set via ldflags during build: -X github.com/i9wa4/visudo/internal/version.Commit=abc123
var Commit = "unknown"
