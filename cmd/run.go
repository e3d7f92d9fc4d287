// File: cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/action"
	"github.com/glasswing-dev/webnav/internal/navigator"
	"github.com/glasswing-dev/webnav/internal/observability"
)

var (
	runStartURL string
	runHeadless bool
)

// runCmd performs a single navigation run from the terminal, printing one
// line per step.
var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run one navigation toward a goal and print each step",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		goal := strings.Join(args, " ")

		if appCfg.LLM.APIKey == "" {
			return fmt.Errorf("no API key configured (set GEMINI_API_KEY or llm.api_key)")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		stop := navigator.NewStopSignal()
		go func() {
			<-ctx.Done()
			stop.Set()
		}()

		startURL := runStartURL
		if startURL == "" {
			startURL = appCfg.Navigator.StartURL
		}

		runner := navigator.NewRunner(appCfg, logger)
		results, err := runner(ctx, navigator.RunOptions{
			Goal:     goal,
			StartURL: startURL,
			Headless: runHeadless,
		}, stop)
		if err != nil {
			return err
		}

		var last navigator.StepResult
		for result := range results {
			last = result
			fmt.Printf("Step %d: [%s] %s (%dms)\n",
				result.Step, result.Action.Kind, result.Message, result.ElapsedMS)
		}

		switch last.Action.Kind {
		case action.KindDone:
			fmt.Printf("\nFinal: %s\n", last.Action.Reason)
		case action.KindFail:
			fmt.Printf("\nFinal: %s\n", last.Action.Reason)
			return fmt.Errorf("navigation failed")
		default:
			if stop.Stopped() {
				fmt.Println("\nStopped.")
			} else if last.Step > 0 {
				logger.Warn("Run ended without a terminal action", zap.Int("steps", last.Step))
				fmt.Println("\nStep ceiling reached without completing the goal.")
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartURL, "start-url", "", "page to open before the first step")
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "run the browser headless")
	rootCmd.AddCommand(runCmd)
}
