// Package cmd - calculate command
package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bonita/adapters/cadastre"
	sitepricing "bonita/adapters/pricing"
	"bonita/core/input"
	"bonita/core/output"
	"bonita/core/pricing"
	"bonita/core/types"
	"bonita/core/ui"
	"bonita/core/valuation"
	"bonita/internal/config"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

var (
	calcForceFresh  bool
	calcAreaCode    int
	calcAPIKey      string
	calcParcels     []string
	calcParcelsFile string
	calcExtract     string
	calcOnFailure   string
	calcNoCache     bool
	calcFormat      string
	calcAssumeYes   bool
)

// calculateCmd represents the calculate command
var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Compute the average soil price of a parcel list",
	Long: `Resolve every parcel in the cadastre, price each distinct soil code and
print the area-weighted average price.

Parcels come from --extract (a pasted cadastre extract), --parcels-file (one
parcel per line), --parcels, or the run.parcels config setting, in that order.

Prompts accept an empty answer as yes. --yes answers all of them.`,
	Args: cobra.NoArgs,
	RunE: runCalculate,
}

func init() {
	rootCmd.AddCommand(calculateCmd)

	calculateCmd.Flags().BoolVar(&calcForceFresh, "force-fresh-bpej-cache", false, "rebuild the price cache before the run without asking")
	calculateCmd.Flags().IntVar(&calcAreaCode, "ku", 0, "cadastral area code")
	calculateCmd.Flags().StringVar(&calcAPIKey, "api-key", "", "cadastre API key (default $"+config.EnvAPIKey+")")
	calculateCmd.Flags().StringSliceVarP(&calcParcels, "parcels", "p", nil, "parcel numbers, e.g. 1119/1,1284")
	calculateCmd.Flags().StringVar(&calcParcelsFile, "parcels-file", "", "file with one parcel number per line")
	calculateCmd.Flags().StringVar(&calcExtract, "extract", "", "file with a pasted cadastre extract ('-' for stdin)")
	calculateCmd.Flags().StringVar(&calcOnFailure, "on-parcel-failure", "", "abort or skip when a parcel cannot be resolved")
	calculateCmd.Flags().BoolVar(&calcNoCache, "no-cache", false, "ignore the local price cache")
	calculateCmd.Flags().StringVarP(&calcFormat, "format", "f", "", "report format (cli, json)")
	calculateCmd.Flags().BoolVarP(&calcAssumeYes, "yes", "y", false, "answer yes to every prompt")
}

func runCalculate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg := *config.Get()
	applyCalculateFlags(cmd, &cfg)

	w := ui.NewTerminalWriter(os.Stderr)
	if cmd.ErrOrStderr() != os.Stderr {
		w = ui.NewWriter(cmd.ErrOrStderr(), true)
	}
	if verbose {
		w.SetVerbosity(2)
	}

	var confirm pricing.Confirmer = ui.NewPromptConfirmer(cmd.InOrStdin(), w)
	if cfg.Run.AssumeYes {
		confirm = ui.AssumeYes
	}

	parcels, err := collectParcels(cmd, &cfg, w, confirm)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}
	policy, _ := types.ParseFailurePolicy(cfg.Run.OnParcelFailure)

	formatter, err := output.New(output.Format(cfg.Run.Format), ui.IsTerminal(os.Stdout) && cmd.OutOrStdout() == os.Stdout)
	if err != nil {
		return err
	}

	site := newSiteClient(cfg)

	useCache := cfg.Run.UseLocalCache
	if useCache {
		if useCache, err = confirm.Confirm("Do you want to use the local price cache file?"); err != nil {
			return err
		}
	}

	var cache *pricing.Cache
	if useCache {
		ctrl := &pricing.Controller{
			Path:      cfg.Pricing.CacheFile,
			MaxAge:    cfg.Pricing.CacheMaxAge(),
			Refresher: newRefresher(cfg, site),
			Confirmer: confirm,
			Logger:    logging.Named("cache"),
		}
		var outcome *pricing.RefreshOutcome
		cache, outcome, err = ctrl.Prepare(ctx, cfg.Run.ForceFreshCache)
		if err != nil {
			return err
		}
		ui.CacheStatus(w, outcome, cache)
	}

	remote := pricing.NewRemoteResolver(site, cfg.Pricing.RetryInterval(), logging.Named("remote"))
	engine := valuation.NewEngine(
		cadastre.New(cadastre.Config{BaseURL: cfg.Cadastre.BaseURL, Timeout: cfg.Cadastre.Timeout()}),
		pricing.NewResolver(cache, remote),
		valuation.WithObserver(ui.NewProgress(w)),
		valuation.WithLogger(logging.Named("valuation")),
	)

	report, err := engine.Run(ctx, valuation.Config{
		APIKey:            cfg.Cadastre.APIKey,
		CadastralAreaCode: cfg.Cadastre.CadastralAreaCode,
		Parcels:           parcels,
		UseLocalCache:     useCache,
		ForceFreshCache:   cfg.Run.ForceFreshCache,
		OnParcelFailure:   policy,
	})
	if err != nil {
		return err
	}
	logging.Info("valuation finished",
		zap.String("run_id", report.RunID),
		zap.String("average_price", report.AveragePrice.String()),
		zap.Int("skipped", len(report.Skipped)))

	return formatter.Render(cmd.OutOrStdout(), report)
}

// applyCalculateFlags overrides config values with flags the user set.
func applyCalculateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("ku") {
		cfg.Cadastre.CadastralAreaCode = calcAreaCode
	}
	if flags.Changed("api-key") {
		cfg.Cadastre.APIKey = calcAPIKey
	}
	if flags.Changed("parcels") {
		cfg.Run.Parcels = calcParcels
	}
	if flags.Changed("on-parcel-failure") {
		cfg.Run.OnParcelFailure = calcOnFailure
	}
	if flags.Changed("format") {
		cfg.Run.Format = calcFormat
	}
	if calcForceFresh {
		cfg.Run.ForceFreshCache = true
	}
	if calcNoCache {
		cfg.Run.UseLocalCache = false
	}
	if calcAssumeYes {
		cfg.Run.AssumeYes = true
	}
}

// collectParcels settles the area code and parcel list. A usable extract wins
// over --parcels-file, which wins over --parcels and the config file.
func collectParcels(cmd *cobra.Command, cfg *config.Config, w *ui.Writer, confirm pricing.Confirmer) ([]types.ParcelID, error) {
	if calcExtract != "" {
		raw, err := readInput(cmd, calcExtract)
		if err != nil {
			return nil, err
		}
		ext := input.ParseExtract(raw)
		if ext.Usable() {
			w.Println("Detected from raw cadastre extract:")
			w.Println(" - Katastrální území: %s [%d]", ext.AreaName, ext.AreaCode)
			w.Println(" - Parcels:")
			for _, p := range ext.Parcels {
				w.Println("    %s", p)
			}
			ok, err := confirm.Confirm("Do you want to proceed?")
			if err != nil {
				return nil, err
			}
			if !ok {
				w.Println("Exiting.")
				return nil, errors.Declined("declined after extract detection")
			}
			cfg.Cadastre.CadastralAreaCode = ext.AreaCode
			cfg.Run.Parcels = ext.Parcels
			return ext.ParcelIDs()
		}
		w.Warning("could not parse a cadastral area or parcels from the extract")
		w.Println("Falling back to the configured parcels.")
	}

	if calcParcelsFile != "" {
		raw, err := readInput(cmd, calcParcelsFile)
		if err != nil {
			return nil, err
		}
		ids, err := input.ParseParcelList(raw)
		if err != nil {
			return nil, err
		}
		cfg.Run.Parcels = parcelStrings(ids)
		return ids, nil
	}

	var raw []string
	for _, p := range cfg.Run.Parcels {
		if p = strings.TrimSpace(p); p != "" {
			raw = append(raw, p)
		}
	}
	cfg.Run.Parcels = raw
	return types.ParseParcelIDs(raw)
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(errors.TypeInput, "read stdin", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(errors.TypeInput, err, "read %s", path)
	}
	return string(data), nil
}

func parcelStrings(ids []types.ParcelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func newSiteClient(cfg config.Config) *sitepricing.Client {
	return sitepricing.New(sitepricing.Config{
		PageBaseURL: cfg.Pricing.PageBaseURL,
		TableURL:    cfg.Pricing.TableURL,
		UserAgent:   cfg.Pricing.UserAgent,
		Timeout:     cfg.Pricing.Timeout(),
	})
}

// newRefresher prefers an external refresh command when one is configured.
func newRefresher(cfg config.Config, site *sitepricing.Client) pricing.Refresher {
	if len(cfg.Pricing.RefreshCommand) > 0 {
		return &pricing.CommandRefresher{Argv: cfg.Pricing.RefreshCommand}
	}
	return site
}
