package main

import "github.com/fnb-tools/fnbmon/cmd/fnbmon/cmd"

func main() {
	cmd.Execute()
}
