package main

import "github.com/andresmejia3/gaze/cmd"

func main() {
	cmd.Execute()
}
