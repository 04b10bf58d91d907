package main

import "github.com/audiolibrelab/easyrec/cmd"

func main() {
	cmd.Execute()
}
