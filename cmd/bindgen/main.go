// Command bindgen checks binding declaration files and generates Go glue
// from them.
//
// Usage:
//
//	bindgen [flags] <command> [args]
//
// Commands:
//
//	check      validate declaration files
//	generate   emit registration glue for a declaration file
//	inspect    show the classes a declaration file describes
//	schema     print the JSON Schema of declaration files
//	cache      list or prune the glue build cache
//	config     manage contexts
//	version    show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/bindkit/cmd/bindgen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
