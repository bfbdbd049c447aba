package main

import "github.com/flagforge/storecheck/cmd"

func main() {
	cmd.Execute()
}
