package main

import "github.com/zurb/foundation-apps/build-tools/cmd"

func main() {
	cmd.Execute()
}
