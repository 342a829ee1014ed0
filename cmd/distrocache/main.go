package main

import (
	"fmt"
	"os"

	"github.com/distrocache/distrocache/internal/config"
	"github.com/distrocache/distrocache/internal/server"
)

func main() {
	cfg, err := config.ParseFlagsWithConfigFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
