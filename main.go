package main

import "github.com/nlbuilder/agentd/cmd"

func main() {
	cmd.Execute()
}
