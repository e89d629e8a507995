package main

import "calendar/cmd"

func main() {
	cmd.Execute()
}
