// Package cmd - price cache commands
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bonita/core/pricing"
	"bonita/core/types"
	"bonita/core/ui"
	"bonita/internal/config"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Manage the local soil price cache",
}

var pricingUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Rebuild the price cache from the price site",
	Long: `Download the full soil code price table and replace the cache file.

With --if-stale the usual age check applies: a recent cache is kept, a stale
one is refreshed after confirmation, a missing one is always fetched.`,
	Args: cobra.NoArgs,
	RunE: runPricingUpdate,
}

var pricingLookupCmd = &cobra.Command{
	Use:   "lookup <code>",
	Short: "Print the price of one soil code",
	Long: `Look a soil code up in the cache, falling back to its page on the price
site. The code may be given with or without leading zeros.

The remote lookup retries until the site answers; interrupt to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runPricingLookup,
}

var (
	pricingIfStale   bool
	pricingAssumeYes bool
	pricingCacheOnly bool
)

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingUpdateCmd)
	pricingCmd.AddCommand(pricingLookupCmd)

	pricingUpdateCmd.Flags().BoolVar(&pricingIfStale, "if-stale", false, "only refresh a missing or stale cache")
	pricingUpdateCmd.Flags().BoolVarP(&pricingAssumeYes, "yes", "y", false, "answer yes to every prompt")
	pricingLookupCmd.Flags().BoolVar(&pricingCacheOnly, "cache-only", false, "do not query the price site on a cache miss")
}

func runPricingUpdate(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()
	w := ui.NewWriter(cmd.ErrOrStderr(), !ui.IsTerminal(os.Stderr))

	var confirm pricing.Confirmer = ui.NewPromptConfirmer(cmd.InOrStdin(), w)
	if pricingAssumeYes || cfg.Run.AssumeYes {
		confirm = ui.AssumeYes
	}

	ctrl := &pricing.Controller{
		Path:      cfg.Pricing.CacheFile,
		MaxAge:    cfg.Pricing.CacheMaxAge(),
		Refresher: newRefresher(cfg, newSiteClient(cfg)),
		Confirmer: confirm,
		Logger:    logging.Named("cache"),
	}
	cache, outcome, err := ctrl.Prepare(commandContext(cmd), !pricingIfStale)
	if err != nil {
		return err
	}
	ui.CacheStatus(w, outcome, cache)
	if outcome.Err != nil {
		return outcome.Err
	}
	return nil
}

func runPricingLookup(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()

	code, err := types.NormalizeSoilCode(args[0])
	if err != nil {
		return err
	}

	cache, _ := pricing.LoadCache(cfg.Pricing.CacheFile)
	if pricingCacheOnly {
		price, ok := cache.Lookup(code)
		if !ok {
			return errors.NotFound("cached soil code", code.String())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", code, price, types.PriceFromCache)
		return nil
	}

	remote := pricing.NewRemoteResolver(newSiteClient(cfg), cfg.Pricing.RetryInterval(), logging.Named("remote"))
	price, source, err := pricing.NewResolver(cache, remote).Resolve(commandContext(cmd), code)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", code, price, source)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
