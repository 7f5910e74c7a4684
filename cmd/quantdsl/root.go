package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/contactsonle/quantdsl/internal/app"
	"github.com/contactsonle/quantdsl/internal/config"
	"github.com/contactsonle/quantdsl/internal/ctxlog"
	"github.com/contactsonle/quantdsl/internal/model"
	"github.com/contactsonle/quantdsl/internal/simulation"
	"github.com/contactsonle/quantdsl/internal/store"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "quantdsl",
		Short:         "Value structured contracts written in the quantdsl contract language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(newCompileCmd(&configPath))
	root.AddCommand(newValueCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// setup builds the application and a context carrying its logger.
func setup(cfg *config.Config) (*app.App, context.Context, error) {
	var st store.Store
	switch cfg.Store.Type {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		st = s
	default:
		st = store.NewMemory()
	}

	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	a := app.New(app.Options{
		Store:           st,
		Workers:         cfg.Evaluation.Workers,
		MaxStubbedCalls: cfg.Evaluation.MaxStubbedCalls,
	})
	return a, ctx, nil
}

func compileContract(ctx context.Context, a *app.App, path string) (*model.ContractSpecification, *model.DependencyGraph, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read contract: %w", err)
	}
	spec, err := a.RegisterContractSpecification(ctx, string(source))
	if err != nil {
		return nil, nil, err
	}
	graph, err := a.GenerateDependencyGraph(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	return spec, graph, nil
}

func newCompileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <contract-file>",
		Short: "Compile a contract into its call dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, ctx, err := setup(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			_, graph, err := compileContract(ctx, a, args[0])
			if err != nil {
				return err
			}
			req, err := a.GraphRequirements(ctx, graph.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "graph:        %s\n", graph.ID)
			fmt.Fprintf(out, "calls:        %d\n", graph.CallCount)
			fmt.Fprintf(out, "leaves:       %d\n", len(graph.LeafCallIDs))
			fmt.Fprintf(out, "markets:      %s\n", strings.Join(req.MarketNames, ", "))
			fixings := make([]string, len(req.FixingDates))
			for i, d := range req.FixingDates {
				fixings[i] = d.Format("2006-01-02")
			}
			fmt.Fprintf(out, "fixing dates: %s\n", strings.Join(fixings, ", "))
			return nil
		},
	}
}

func newValueCmd(configPath *string) *cobra.Command {
	var (
		marketFlags []string
		obsDate     string
		paths       int
		rate        float64
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "value <contract-file>",
		Short: "Value a contract against a generated market simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if paths > 0 {
				cfg.Simulation.PathCount = paths
			}
			if cmd.Flags().Changed("rate") {
				cfg.Simulation.InterestRate = rate
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed = seed
			}

			params, err := parseMarketFlags(marketFlags)
			if err != nil {
				return err
			}
			observation, err := time.ParseInLocation("2006-01-02", obsDate, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid observation date %q", obsDate)
			}

			a, ctx, err := setup(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			_, graph, err := compileContract(ctx, a, args[0])
			if err != nil {
				return err
			}
			req, err := a.GraphRequirements(ctx, graph.ID)
			if err != nil {
				return err
			}
			for _, name := range req.MarketNames {
				if _, ok := params[name]; !ok {
					return fmt.Errorf("contract observes market %q; provide --market %s=<spot>:<vol>", name, name)
				}
			}

			calibration, err := a.RegisterMarketCalibration(ctx, "gbm", params)
			if err != nil {
				return err
			}
			sim, err := a.GenerateMarketSimulation(ctx, simulation.GenerateParams{
				CalibrationID:   calibration.ID,
				MarketNames:     req.MarketNames,
				FixingDates:     req.FixingDates,
				ObservationDate: observation,
				PathCount:       cfg.Simulation.PathCount,
				InterestRate:    cfg.Simulation.InterestRate,
				Seed:            cfg.Simulation.Seed,
			})
			if err != nil {
				return err
			}

			_, value, err := a.GenerateContractValuation(ctx, graph.ID, sim)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calls: %d  paths: %d  rate: %g\n", graph.CallCount, sim.PathCount, sim.InterestRate)
			fmt.Fprintf(out, "value: %g\n", value.Mean())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&marketFlags, "market", nil, "market calibration as NAME=<spot>:<vol> (repeatable)")
	cmd.Flags().StringVar(&obsDate, "observation-date", time.Now().UTC().Format("2006-01-02"), "observation date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&paths, "paths", 0, "Monte Carlo path count (overrides config)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "continuously compounded annual interest rate (overrides config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "simulation random seed (overrides config)")
	return cmd
}

// parseMarketFlags parses repeated NAME=<spot>:<vol> calibration flags.
func parseMarketFlags(flags []string) (map[string]model.MarketParams, error) {
	params := make(map[string]model.MarketParams, len(flags))
	for _, f := range flags {
		name, rest, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --market %q, expected NAME=<spot>:<vol>", f)
		}
		spotStr, volStr, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --market %q, expected NAME=<spot>:<vol>", f)
		}
		spot, err := strconv.ParseFloat(spotStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid spot in --market %q", f)
		}
		vol, err := strconv.ParseFloat(volStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vol in --market %q", f)
		}
		params[name] = model.MarketParams{Spot: spot, Volatility: vol}
	}
	return params, nil
}
