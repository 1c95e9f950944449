package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/config"
	"github.com/stellarlinkco/todoclaw/internal/gateway"
	"github.com/stellarlinkco/todoclaw/internal/logging"
	"github.com/stellarlinkco/todoclaw/internal/reminder"
	"github.com/stellarlinkco/todoclaw/internal/store"
	"github.com/stellarlinkco/todoclaw/internal/task"
)

var rootCmd = &cobra.Command{
	Use:          "todoclaw",
	Short:        "todoclaw - chat task tracker",
	SilenceUsage: true,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway (channels + reminder jobs)",
	RunE:  runGateway,
}

var remindCmd = &cobra.Command{
	Use:       "remind <daily|snooze|cleanup>",
	Short:     "Run one reminder sweep now and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "snooze", "cleanup"},
	RunE:      runRemind,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show todoclaw status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, remindCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// cmdContext falls back to Background when the command runs outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Channels.Telegram.Enabled && !cfg.Channels.Web.Enabled {
		log.Warn("no channels enabled; set channels.telegram or channels.web in " + config.ConfigPath())
	}

	gw, err := gateway.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(cmdContext(cmd))
}

func runRemind(cmd *cobra.Command, args []string) error {
	kind, err := reminder.ParseKind(args[0])
	if err != nil {
		return err
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gw, err := gateway.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown() }()

	result, err := gw.RunOnce(cmdContext(cmd), kind)
	if err != nil {
		return fmt.Errorf("%s sweep: %w", kind, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config: %w", err)
	}

	if err := config.SaveConfig(config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to enable telegram or web\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set TODOCLAW_TELEGRAM_TOKEN and TODOCLAW_TELEGRAM_ENABLED=true")
	fmt.Fprintln(out, "  3. Run 'todoclaw gateway'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Fprintf(out, "Web: enabled=%v (%s:%d)\n", cfg.Channels.Web.Enabled, cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Fprintf(out, "Timezone: %s\n", cfg.Reminders.Timezone)

	printStoreStatus(cmdContext(cmd), out, cfg)
	return printJobStatus(out, cfg, time.Now())
}

func printStoreStatus(ctx context.Context, out io.Writer, cfg *config.Config) {
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		fmt.Fprintf(out, "Store: %s (not created yet)\n", cfg.Store.Path)
		return
	}
	st, err := store.Open(cfg.Store.Path, nil)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Store: error (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.Path)
	fmt.Fprintf(out, "Tasks: %d total (%d pending, %d in progress, %d completed), %d users\n",
		stats.Total,
		stats.ByStatus[task.StatusPending],
		stats.ByStatus[task.StatusInProgress],
		stats.ByStatus[task.StatusCompleted],
		stats.Users)
}

func printJobStatus(out io.Writer, cfg *config.Config, now time.Time) error {
	svc, err := gateway.NewCronService(cfg, nil, gateway.Options{})
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	fmt.Fprintln(out, "Jobs:")
	for _, job := range svc.Status(now) {
		line := fmt.Sprintf("  %-8s %-14s next %s", job.Name, job.Schedule, job.Next.Format("2006-01-02 15:04 MST"))
		if job.LastStatus != "" {
			line += fmt.Sprintf(", last %s %s", job.LastRun().Format("2006-01-02 15:04"), job.LastStatus)
			if job.LastError != "" {
				line += ": " + job.LastError
			} else if job.LastResult != "" {
				line += " (" + job.LastResult + ")"
			}
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	return nil
}
