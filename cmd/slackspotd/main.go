package main

import (
	"log"
	"os"
)

func main() {
	logger := log.New(os.Stdout, "slackspot ", log.LstdFlags)
	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}
