package main

import "github.com/saofleet/reconciler/cmd"

func main() {
	cmd.Execute()
}
