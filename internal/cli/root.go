// Package cli 是 sham 命令行：跑工作负载、查看保存下来的调度轨迹。
package cli

import (
	"fmt"

	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagDebug    bool
	flagLogLevel string

	logger *log.Logger
)

// NewRootCmd 创建 sham 的根命令
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sham",
		Short: "sham: a simulated single-CPU kernel thread scheduler",
		Long: `sham boots a simulated single-CPU kernel and runs workloads on it: threads
with priorities, locks with priority donation, semaphores, condition
variables, timer sleep, and the MLFQS scheduler (-o mlfqs).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			level, err := log.ParseLevel(flagLogLevel)
			if err != nil {
				return fmt.Errorf("bad --log-level: %w", err)
			}
			logger = sham.DefaultLogger()
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newTraceCmd(),
	)

	return root
}
