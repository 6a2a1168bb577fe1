package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neuron-sim/neuron-sim/sim"
	"github.com/neuron-sim/neuron-sim/sim/engine"
)

var (
	// CLI flags for the demo network
	cells      int     // number of cells in the ring
	cellKind   string  // "lif" or "cable"
	weight     float64 // synaptic weight
	delayMS    float64 // connection delay in ms
	durationMS float64 // simulated time in ms
	dtMS       float64 // integration step in ms
	seed       int64   // master seed for stochastic schedules
	configPath string  // optional yaml config overriding the flags

	// CLI flags for execution resources
	threads     int    // intra-rank threads; 0 means NumCPU
	logLevel    string // log verbosity
	printSpikes bool   // dump every spike to stdout
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "neuron-sim",
	Short: "Distributed neural network simulation engine",
}

// runCmd builds the demo ring network and integrates it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo ring network",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		cfg := DefaultRingConfig()
		if configPath != "" {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parsing config: %w", err)
			}
		}
		if cmd.Flags().Changed("cells") {
			cfg.Cells = cells
		}
		if cmd.Flags().Changed("kind") {
			cfg.Kind = cellKind
		}
		if cmd.Flags().Changed("weight") {
			cfg.Weight = weight
		}
		if cmd.Flags().Changed("delay") {
			cfg.Delay = delayMS
		}
		if cmd.Flags().Changed("duration") {
			cfg.Duration = durationMS
		}
		if cmd.Flags().Changed("dt") {
			cfg.DT = dtMS
		}
		cfg.Seed = seed
		if err := cfg.Validate(); err != nil {
			return err
		}

		simulation, err := engine.New(engine.Config{
			Recipe:  NewRingRecipe(cfg),
			Threads: threads,
		})
		if err != nil {
			return err
		}

		if printSpikes {
			simulation.SetGlobalSpikeCallback(func(spikes []sim.Spike) {
				for _, s := range spikes {
					fmt.Printf("%d:%d\t%.4f\n", s.Source.GID, s.Source.LID, s.Time)
				}
			})
		}

		logrus.Infof("running %d %s cells for %g ms (dt %g ms)", cfg.Cells, cfg.Kind, cfg.Duration, cfg.DT)
		if err := simulation.Run(cfg.Duration, cfg.DT); err != nil {
			return err
		}
		logrus.Infof("done: %s spikes", humanize.Comma(int64(simulation.NumSpikes())))
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&cells, "cells", 20, "number of cells in the ring")
	runCmd.Flags().StringVar(&cellKind, "kind", "lif", "cell kind: lif or cable")
	runCmd.Flags().Float64Var(&weight, "weight", 200, "synaptic weight")
	runCmd.Flags().Float64Var(&delayMS, "delay", 1, "connection delay [ms]")
	runCmd.Flags().Float64Var(&durationMS, "duration", 100, "simulated time [ms]")
	runCmd.Flags().Float64Var(&dtMS, "dt", 0.025, "integration step [ms]")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "master seed")
	runCmd.Flags().StringVar(&configPath, "config", "", "yaml config file")
	runCmd.Flags().IntVar(&threads, "threads", 0, "intra-rank threads (0 = all CPUs)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&printSpikes, "print-spikes", false, "print every spike to stdout")

	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
