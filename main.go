package main

import "billing-reconciler/cmd"

func main() {
	cmd.Execute()
}
