package main

import "github.com/kozaktomas/frame-dedup/cmd"

func main() {
	cmd.Execute()
}
