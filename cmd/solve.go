// File: cmd/solve.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
	"github.com/xkilldash9x/gatecrash/internal/observability"
)

type solveFlags struct {
	attempts    int
	rounds      int
	timeout     time.Duration
	threshold   float64
	modality    string
	preferLocal bool
	jsonOutput  bool
}

func newSolveCmd() *cobra.Command {
	var flags solveFlags

	cmd := &cobra.Command{
		Use:   "solve <url>",
		Short: "Open a page, detect any challenge on it and resolve it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args[0], flags)
		},
	}

	// Flags default to the schema constants; values from the config file are
	// merged in at run time for any flag the user did not set explicitly.
	cmd.Flags().IntVar(&flags.attempts, "attempts", schemas.DefaultMaxAttempts, "max solve attempts per challenge")
	cmd.Flags().IntVar(&flags.rounds, "rounds", schemas.DefaultMaxRounds, "max classify-click rounds per attempt")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", schemas.DefaultTimeout, "wall-clock ceiling per solver")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", schemas.DefaultConfidenceThreshold, "minimum classifier confidence for a tile match")
	cmd.Flags().StringVar(&flags.modality, "modality", string(schemas.ModalityImage), "preferred challenge modality (image or audio)")
	cmd.Flags().BoolVar(&flags.preferLocal, "prefer-local", false, "try the local model before cloud recognition")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the result as JSON")
	return cmd
}

// mergeConfig overlays config file values onto flags the user left untouched.
func (f *solveFlags) mergeConfig(cmd *cobra.Command, cfg config.SolverConfig) {
	if !cmd.Flags().Changed("attempts") && cfg.MaxAttempts > 0 {
		f.attempts = cfg.MaxAttempts
	}
	if !cmd.Flags().Changed("rounds") && cfg.MaxRounds > 0 {
		f.rounds = cfg.MaxRounds
	}
	if !cmd.Flags().Changed("timeout") && cfg.Timeout > 0 {
		f.timeout = cfg.Timeout
	}
	if !cmd.Flags().Changed("threshold") && cfg.ConfidenceThreshold > 0 {
		f.threshold = cfg.ConfidenceThreshold
	}
	if !cmd.Flags().Changed("modality") && cfg.PreferredModality != "" {
		f.modality = cfg.PreferredModality
	}
	if !cmd.Flags().Changed("prefer-local") {
		f.preferLocal = cfg.PreferLocal
	}
}

func runSolve(cmd *cobra.Command, url string, flags solveFlags) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	flags.mergeConfig(cmd, config.Get().Solver)

	components, err := NewComponents(ctx, config.Get())
	if err != nil {
		return err
	}
	defer components.Shutdown()

	env, err := components.NewEnv(ctx, url, flags.preferLocal)
	if err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	defer env.Scratch.Cleanup()

	env.Opts = schemas.Options{
		MaxAttempts:         flags.attempts,
		MaxRounds:           flags.rounds,
		Timeout:             flags.timeout,
		ConfidenceThreshold: flags.threshold,
		PreferLocal:         flags.preferLocal,
		PreferredModality:   schemas.Modality(flags.modality),
		OnProgress: schemas.ProgressFunc(func(ev schemas.ProgressEvent) {
			logger.Info("progress", zap.String("state", ev.State), zap.String("detail", ev.Detail))
		}),
	}

	result := components.Dispatcher.Solve(ctx, env)

	if flags.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(result)
	}

	if !result.Success {
		return fmt.Errorf("resolution failed (%s): %s", result.ErrorKind, result.Error)
	}
	return nil
}

func printResult(r schemas.Result) {
	if r.Success {
		fmt.Printf("resolved via %s in %s (attempts=%d rounds=%d)\n",
			r.Method, r.Elapsed.Round(time.Millisecond), r.Attempts, r.Rounds)
		if r.Message != "" {
			fmt.Println(r.Message)
		}
		return
	}
	fmt.Printf("failed [%s] after %s (attempts=%d rounds=%d): %s\n",
		r.ErrorKind, r.Elapsed.Round(time.Millisecond), r.Attempts, r.Rounds, r.Error)
}
