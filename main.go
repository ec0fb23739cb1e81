package main

import "github.com/jmehdipour/vps-billing/cmd"

func main() {
	cmd.Execute()
}
