package main

import "github.com/davide97g/nami/namisim/cmd"

func main() {
	cmd.Execute()
}
