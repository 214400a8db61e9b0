package main

import "github.com/jmehdipour/vm-relay/cmd"

func main() {
	cmd.Execute()
}
