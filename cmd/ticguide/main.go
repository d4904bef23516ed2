package main

import "ticguide/cmd/ticguide/cmd"

func main() {
	cmd.Execute()
}
