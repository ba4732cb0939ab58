package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	"dropvault/internal/app/bootstrap"
)

// Provision process entrypoint.
// Loads items from a JSON file (and/or a neutral starter set) into the
// configured durable store.
func main() {
	file := flag.String("file", "", "path to a JSON array of {\"category\": ..., \"payload\": {...}}")
	sample := flag.Bool("sample", false, "insert the starter item set when the pool is empty")
	flag.Parse()

	if err := run(*file, *sample); err != nil {
		log.Fatalf("provision failed: %v", err)
	}
}

func run(file string, sample bool) error {
	if file == "" && !sample {
		return errors.New("either -file or -sample is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildProvision(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("provision close failed: %v", err)
		}
	}()

	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		items, err := parseItems(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
		result, err := app.Module.Provision.Execute(ctx, commands.ProvisionItemsCommand{Items: items})
		if err != nil {
			return err
		}
		fmt.Printf("provisioned %d items from %s\n", len(result.ItemIDs), file)
	}

	if sample {
		result, err := app.Module.Provision.Execute(ctx, commands.ProvisionItemsCommand{
			Items:       sampleItems(),
			OnlyIfEmpty: true,
		})
		if err != nil {
			return err
		}
		if result.Skipped {
			fmt.Println("pool not empty, starter set skipped")
		} else {
			fmt.Printf("provisioned %d starter items\n", len(result.ItemIDs))
		}
	}
	return nil
}
