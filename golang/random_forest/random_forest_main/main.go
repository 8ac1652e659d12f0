package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	srcConfig string
	verbose   bool
	log       zerolog.Logger

	rootCmd = &cobra.Command{
		Use:           "random_forest",
		Short:         "Train bagged random forests and inspect them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log = log.Level(level)
		},
	}

	trainCmd = &cobra.Command{
		Use:   "train",
		Short: "Train a forest and store its out-of-bag report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var trainConfig TrainConfig
			if err := decodeConfig(srcConfig, &trainConfig); err != nil {
				return err
			}
			return train(cmd.Context(), trainConfig)
		},
	}

	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Predict targets with a saved forest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var predictConfig PredictConfig
			if err := decodeConfig(srcConfig, &predictConfig); err != nil {
				return err
			}
			return predict(predictConfig)
		},
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Render the trees of a saved forest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphConfig GraphConfig
			if err := decodeConfig(srcConfig, &graphConfig); err != nil {
				return err
			}
			return graph(graphConfig)
		},
	}

	reportCmd = &cobra.Command{
		Use:   "report <reports.db> [run id]",
		Short: "List stored training runs or print the report of one run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return report(cmd.OutOrStdout(), args[0], runID)
		},
	}
)

func init() {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every grown tree")
	for _, cmd := range []*cobra.Command{trainCmd, predictCmd, graphCmd} {
		cmd.Flags().StringVarP(&srcConfig, "config", "c", "", "json or yaml config file")
		_ = cmd.MarkFlagRequired("config")
	}
	rootCmd.AddCommand(trainCmd, predictCmd, graphCmd, reportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("random_forest failed")
		stop()
		os.Exit(1)
	}
}
