package main

import "github.com/kiesman99/tilestitch/cmd"

func main() {
	cmd.Execute()
}
