package main

import (
	"fmt"
	"log/slog"

	"github.com/jonathan/catalog-sync/internal/sellers"
	"github.com/spf13/cobra"
)

var loadSellersCmd = &cobra.Command{
	Use:   "load-sellers",
	Short: "Upsert sellers from a CSV file",
	Long: `Reads seller rows (name, city, contact, catalogue_link) from a CSV file and upserts them
by their deterministic seller ID. Rows without a catalogue link are skipped.`,
	RunE: runLoadSellers,
}

func init() {
	loadSellersCmd.Flags().String("csv", "", "Seller CSV path (defaults to sellers_csv from config)")
	rootCmd.AddCommand(loadSellersCmd)
}

func runLoadSellers(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	res, err := sellers.Load(ctx, database, cfg.SellersCSV, slog.Default())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded sellers from %s: %d inserted, %d updated\n",
		cfg.SellersCSV, res.Inserted, res.Updated)
	return nil
}
