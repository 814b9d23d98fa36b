// Package main provides the entry point for the bench-engine CLI.
package main

import "yqhp/bench-engine/cmd"

func main() {
	cmd.Execute()
}
