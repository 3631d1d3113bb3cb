package main

import (
	"log"

	"github.com/akhila-s-rao/bursty-traffic-generator/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
}
