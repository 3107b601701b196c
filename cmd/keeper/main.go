package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/partition-keeper/internal/keeper"
)

func main() {
    configPath := flag.String("config", "./config/keeper.yaml", "path to keeper config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	k, err := keeper.New(*configPath)
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
	if err := k.Start(ctx); err != nil {
		log.Printf("keeper stopped with error: %v", err)
		os.Exit(1)
	}
}
