package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/concierge/internal/config"
	"github.com/kalambet/concierge/internal/storage"
)

var (
	seedDays  int
	seedStart string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample providers, slots, and a demo customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed()
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedDays, "days", 7, "number of days of slots to provision per provider")
	seedCmd.Flags().StringVar(&seedStart, "start", "", "first slot date (YYYY-MM-DD, defaults to today)")
}

func runSeed() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	start := seedStart
	if start == "" {
		start = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", start); err != nil {
		return fmt.Errorf("invalid --start date %q: expected YYYY-MM-DD", start)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	providers := []storage.ServiceProvider{
		{ID: uuid.NewString(), Name: "Dr. Elena Reyes", Contact: "e.reyes@example.com"},
		{ID: uuid.NewString(), Name: "Dr. Marcus Webb", Contact: "m.webb@example.com"},
	}
	for _, p := range providers {
		printStep("Creating provider %s", p.Name)
		if err := store.CreateProvider(ctx, p); err != nil {
			printError("could not create provider %s: %v", p.Name, err)
			return err
		}
		n, err := store.ProvisionSlots(ctx, p.ID, start, seedDays)
		if err != nil {
			printError("could not provision slots for %s: %v", p.Name, err)
			return err
		}
		printSuccess("Provisioned %d slots for %s starting %s", n, p.Name, start)
	}

	customer := storage.Customer{
		ID:      uuid.NewString(),
		Name:    "Demo Customer",
		Contact: "demo@example.com",
	}
	printStep("Creating demo customer")
	if err := store.CreateCustomer(ctx, customer); err != nil {
		printError("could not create customer: %v", err)
		return err
	}
	printSuccess("Demo customer created (ID %s)", customer.ID)
	printStatus("Customer ID", "%s", customer.ID)
	return nil
}
