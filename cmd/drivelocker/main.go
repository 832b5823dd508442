package main

import "github.com/jmcleod/drivelocker/cmd/drivelocker/cmd"

func main() {
	cmd.Execute()
}
