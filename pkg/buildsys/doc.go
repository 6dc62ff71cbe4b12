// Package buildsys implements a minimal build system based on Starlark for the task specification
// and mvdan.cc/sh for the shell runtime.
//
// Tasks declare their dependencies explicitly. A run first resolves the requested tasks into a
// Graph and then executes it with a Runner, which skips tasks whose outputs are up to date and can
// run independent tasks in parallel. Besides shell commands, tasks can call native steps
// (copying files, compiling stylesheets, generating route tables, ...) registered by the caller.
package buildsys
