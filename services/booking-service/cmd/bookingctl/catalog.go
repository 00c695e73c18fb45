package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the service catalog",
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add services from a TOML catalog file",
	Long: `Adds every [[service]] entry of the file whose name is not in the store yet.
Running it twice adds nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: runCatalogSeed,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the services in the store",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

func init() {
	catalogSeedCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "catalog file (TOML)")
	_ = catalogSeedCmd.MarkFlagRequired("file")

	catalogCmd.AddCommand(catalogSeedCmd)
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}

type catalogEntry struct {
	Name            string `toml:"name"`
	ImageURL        string `toml:"image_url"`
	Price           string `toml:"price"`
	Currency        string `toml:"currency"`
	DurationMinutes int    `toml:"duration_minutes"`
	Description     string `toml:"description"`
}

type catalogDoc struct {
	Services []catalogEntry `toml:"service"`
}

func loadCatalog(path string) ([]model.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var doc catalogDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	services := make([]model.Service, 0, len(doc.Services))
	seen := make(map[string]bool, len(doc.Services))
	for i, e := range doc.Services {
		svc, err := e.service()
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", i+1, err)
		}
		if seen[svc.Name] {
			return nil, fmt.Errorf("service %d: duplicate name %q", i+1, svc.Name)
		}
		seen[svc.Name] = true
		services = append(services, svc)
	}
	return services, nil
}

func (e catalogEntry) service() (model.Service, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return model.Service{}, fmt.Errorf("name is required")
	}
	price := strings.TrimSpace(e.Price)
	if v, err := strconv.ParseFloat(price, 64); err != nil || v < 0 {
		return model.Service{}, fmt.Errorf("%s: price must be a non-negative decimal", name)
	}
	if e.DurationMinutes <= 0 {
		return model.Service{}, fmt.Errorf("%s: duration_minutes must be positive", name)
	}
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" {
		currency = "UAH"
	}
	return model.Service{
		Name:            name,
		ImageURL:        strings.TrimSpace(e.ImageURL),
		Price:           price,
		Currency:        currency,
		DurationMinutes: e.DurationMinutes,
		Description:     strings.TrimSpace(e.Description),
	}, nil
}

func runCatalogSeed(cmd *cobra.Command, _ []string) error {
	services, err := loadCatalog(catalogFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, _, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	existing, err := store.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.Name] = true
	}

	added := 0
	for _, svc := range services {
		if have[svc.Name] {
			cmd.Printf("skip  %s (exists)\n", svc.Name)
			continue
		}
		id, err := store.CreateService(ctx, svc)
		if err != nil {
			return fmt.Errorf("adding %s: %w", svc.Name, err)
		}
		cmd.Printf("added %s (id %d)\n", svc.Name, id)
		added++
	}
	cmd.Printf("%d added, %d skipped\n", added, len(services)-added)
	return nil
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, _, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	services, err := store.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	if len(services) == 0 {
		cmd.Println("No services.")
		return nil
	}
	for _, s := range services {
		cmd.Printf("%d\t%s\t%s %s\t%d min\n", s.ID, s.Name, s.Price, s.Currency, s.DurationMinutes)
	}
	return nil
}
