package main

import "github.com/audiolibrelab/remotecapture/cmd"

func main() {
	cmd.Execute()
}
