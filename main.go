package main

import "keycard/cmd"

func main() {
	cmd.Execute()
}
