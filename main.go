package main

import "github.com/code-sleuth/pubmedflo-go/cmd"

func main() {
	cmd.Execute()
}
