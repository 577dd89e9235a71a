package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quizstats/quizstats/internal/config"
	"github.com/quizstats/quizstats/internal/logger"
	"github.com/quizstats/quizstats/internal/scrape"
	"github.com/quizstats/quizstats/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagConfig  string
	flagDataDir string
	flagCities  string
	flagNoSync  bool
	flagVerbose bool
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizstats",
		Short: "Incrementally scrape quiz-league schedules and results",
		Long: `Scrapes game schedules and scored results from the quiz-league website,
normalizes them into cities, series, games, teams and results, and persists
them incrementally so repeated runs only fetch new data.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(flagVerbose)
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "Path to the YAML configuration")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "~/.local/share/quizstats", "Data directory for CSV tables")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run discovery and result ingestion for the configured cities",
		RunE:  runScrape,
	}
	scrapeCmd.Flags().StringVar(&flagCities, "cities", "", "Comma-separated city ids (default: config active set)")
	scrapeCmd.Flags().BoolVar(&flagNoSync, "no-sync", false, "Skip the remote sync even when credentials are configured")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-city watermarks and pending game counts",
		RunE:  runStatus,
	}

	root.AddCommand(scrapeCmd, statusCmd)
	return root
}

// openStore builds the CSV store and imports the configured cities and rank
// seed table.
func openStore(cfg *config.Config) (*storage.CSVStore, error) {
	store, err := storage.NewCSVStore(flagDataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.SeedCities(cfg.ModelCities()); err != nil {
		return nil, fmt.Errorf("importing cities: %w", err)
	}
	if err := store.SeedRankMappings(cfg.ModelRankMappings()); err != nil {
		return nil, fmt.Errorf("seeding rank mappings: %w", err)
	}
	return store, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	if !flagNoSync {
		secrets := config.LoadSecrets()
		switch {
		case secrets.GistID == "" && secrets.GithubToken == "":
			logrus.Info("No sync credentials configured, running local-only")
		case secrets.GistID == "" || secrets.GithubToken == "":
			// Half-configured sync is a configuration error, not a silent
			// local-only run.
			return fmt.Errorf("remote sync needs both QUIZSTATS_GIST_ID and QUIZSTATS_GITHUB_TOKEN")
		default:
			syncer, err := storage.NewGistSync(secrets.GistID, secrets.GithubToken)
			if err != nil {
				return fmt.Errorf("configuring sync: %w", err)
			}
			store.SetSyncer(syncer)
		}
	}

	cityIDs := cfg.ActiveCities
	if flagCities != "" {
		cityIDs, err = parseCityIDs(flagCities)
		if err != nil {
			return err
		}
	}

	selector, err := scrape.NewSelector(store, cfg.BaseURL, cityIDs)
	if err != nil {
		return err
	}

	// A termination signal cancels the run cooperatively: in-flight work
	// finishes, persisted progress is kept, and the final sync still runs.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return scrape.NewRunner(store, selector).Run(ctx, cityIDs)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	cities, err := store.GetCitiesByIDs(cfg.ActiveCities)
	if err != nil {
		return err
	}
	pending, err := store.GetGamesWithoutResults()
	if err != nil {
		return err
	}

	pendingByCity := make(map[int]int)
	for _, g := range pending {
		pendingByCity[g.CityID]++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Data directory: %s\n\n", store.DataDir())
	for _, city := range cities {
		watermark := city.LastGameID
		if watermark == "" {
			watermark = "(none)"
		}
		strategy := city.Strategy
		if strategy == "" {
			strategy = scrape.StrategyLegacy
		}
		fmt.Fprintf(out, "%-20s strategy=%-3s watermark=%-10s pending=%d\n",
			city.Name, strategy, watermark, pendingByCity[city.ID])
	}
	return nil
}

// parseCityIDs parses the --cities override.
func parseCityIDs(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid city id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
