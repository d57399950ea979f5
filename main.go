package main

import "github.com/ValentinKolb/dRate/cmd"

func main() {
	cmd.Execute()
}
