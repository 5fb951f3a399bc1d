/*
Copyright © 2026 kvbench authors
*/
package main

import "github.com/kvbench/kvcompare/cmd"

// Version information set by build
var (
	GitSHA1  = "unknown"
	GitDirty = "unknown"
)

func main() {
	// Set version info in cmd package
	cmd.SetVersionInfo(GitSHA1, GitDirty)
	cmd.Execute()
}
