package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/agent"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/merger"
)

var (
	agentAddr  string
	agentRetry time.Duration
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a capture agent that connects to the daemon",
	Long: `Run the capture agent in its own process and connect it to a daemon
started with agent_mode: remote. The agent reconnects until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		addr := agentAddr
		if addr == "" {
			addr = cfg.AgentListenAddr
		}

		ag := agent.New(agent.NewFFmpegCapturer(cfg.FFmpegPath), merger.New(cfg.FFmpegPath, logger), logger)
		for {
			conn, err := bridge.Dial(ctx, addr)
			if err != nil {
				logger.Warn("Cannot reach daemon", zap.String("addr", addr), zap.Error(err))
			} else {
				logger.Info("Connected to daemon", zap.String("addr", addr))
				err = ag.Serve(ctx, conn)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("Agent connection closed", zap.Error(err))
				}
			}

			select {
			case <-ctx.Done():
				fmt.Println("Agent stopped.")
				return nil
			case <-time.After(agentRetry):
			}
		}
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentAddr, "addr", "", "Daemon agent address (default: agent_listen_addr)")
	agentCmd.Flags().DurationVar(&agentRetry, "retry", 2*time.Second, "Delay between reconnect attempts")
}
