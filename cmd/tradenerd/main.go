package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradenerd/internal/config"
	"tradenerd/internal/dataflows"
	"tradenerd/internal/embedding"
	"tradenerd/internal/graph"
	"tradenerd/internal/llm"
	"tradenerd/internal/logging"
	"tradenerd/internal/memory"
	"tradenerd/internal/session"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Propagate flags
	analysisDate   string
	researchRounds int
	riskRounds     int
	jsonOutput     bool

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tradenerd",
	Short: "tradeNERD - multi-agent trading deliberation engine",
	Long: `tradeNERD runs structured trading deliberations: an analyst team
produces reports, bull and bear researchers debate the investment case,
a three-way risk debate stress-tests the trading plan, and a final
synthesis produces one BUY/SELL/HOLD decision.

Lessons from every decided deliberation are written back to a precedent
memory and retrieved in future sessions via hybrid keyword+semantic
search.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

// propagateCmd runs one full deliberation.
var propagateCmd = &cobra.Command{
	Use:   "propagate [security]",
	Short: "Run one deliberation for a security on a date",
	Long: `Drives one session through every phase: analyst reports, the
bull/bear research debate, the trading plan, the risk debate, and the
final decision.

Example:
  tradenerd propagate NVDA --date 2024-05-10 --research-rounds 1 --risk-rounds 1`,
	Args: cobra.ExactArgs(1),
	RunE: runPropagate,
}

func runPropagate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.Initialize(workspace, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}

	date := analysisDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, store, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	logger.Info("starting deliberation",
		zap.String("security", args[0]),
		zap.String("date", date))

	result, err := router.Propagate(ctx, session.Request{
		Security:          args[0],
		Date:              date,
		MaxResearchRounds: researchRounds,
		MaxRiskRounds:     riskRounds,
	})
	if err != nil {
		return err
	}

	return printResult(result)
}

// buildRouter wires the process-wide resources the router needs.
func buildRouter(cfg *config.Config) (*graph.Router, *memory.Store, error) {
	quick := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.QuickThinkModel,
		Timeout: cfg.LLM.InvocationTimeout(),
	})
	deep := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.DeepThinkModel,
		Timeout: cfg.LLM.InvocationTimeout(),
	})

	// The embedding engine is optional: without one the memory store
	// runs keyword-only.
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	})
	if err != nil {
		logger.Warn("embedding engine unavailable, memory degrades to keyword-only", zap.Error(err))
		engine = nil
	}

	store, err := memory.NewStore(cfg.Memory.DatabasePath, engine)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	dc := dataflows.NewClient(
		vendorFrom(cfg.Dataflows.Prices),
		vendorFrom(cfg.Dataflows.Fundamentals),
		vendorFrom(cfg.Dataflows.News),
		vendorFrom(cfg.Dataflows.Social),
	)

	return graph.NewRouter(cfg, quick, deep, store, dc), store, nil
}

func vendorFrom(vc config.VendorConfig) *dataflows.Vendor {
	timeout, err := time.ParseDuration(vc.Timeout)
	if err != nil {
		timeout = 0
	}
	return dataflows.NewVendor(vc.BaseURL, vc.APIKey, timeout)
}

func printResult(result *session.Result) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if result.Failure != nil {
			os.Exit(1)
		}
		return nil
	}

	fmt.Printf("Session %s (%s on %s): %s\n", result.SessionID, result.Security, result.Date, result.Status)
	if result.Failure != nil {
		fmt.Printf("Failed in %s: %s: %s\n", result.Failure.Phase, result.Failure.Kind, result.Failure.Err)
		os.Exit(1)
	}
	if result.Decision != nil {
		fmt.Printf("\nDecision: %s\n", result.Decision.Action)
		if result.Decision.Magnitude != "" {
			fmt.Printf("Sizing: %s\n", result.Decision.Magnitude)
		}
		fmt.Printf("\n%s\n", result.Decision.Rationale)
	}
	return nil
}

// validateCmd checks the configuration without running a session.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("configuration OK")
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tradenerd.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory for logs and data")

	propagateCmd.Flags().StringVar(&analysisDate, "date", "", "analysis date (YYYY-MM-DD, defaults to today)")
	propagateCmd.Flags().IntVar(&researchRounds, "research-rounds", 0, "override max research debate rounds")
	propagateCmd.Flags().IntVar(&riskRounds, "risk-rounds", 0, "override max risk debate rounds")
	propagateCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the session result as JSON")

	rootCmd.AddCommand(propagateCmd)
	rootCmd.AddCommand(validateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
