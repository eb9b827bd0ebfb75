package main

import "github.com/omniget/omniget/cmd"

func main() {
	cmd.Execute()
}
