// Package main provides the graphlower CLI.
package main

import "github.com/born-ml/graphlower/cmd/graphlower/internal/command"

func main() {
	command.Execute()
}
