package main

import (
	"log"

	"github.com/tzheng/jobpilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
