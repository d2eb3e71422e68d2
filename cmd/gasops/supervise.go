package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/jiujiugas/gasops"
	"github.com/jiujiugas/gasops/internal/journal"
	"github.com/jiujiugas/gasops/internal/lockfile"
	"github.com/jiujiugas/gasops/internal/servicefile"
)

const (
	stopPollInterval   = 200 * time.Millisecond
	defaultStopTimeout = 30 * time.Second
	recentRecoveries   = 5
)

type superviseFlags struct {
	servicesFile   string
	strategy       string
	healthInterval time.Duration
	stopTimeout    time.Duration
	force          bool
}

func newSuperviseCmd(a *app) *cobra.Command {
	fl := &superviseFlags{}
	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run and control the service supervisor",
	}
	cmd.PersistentFlags().StringVar(&fl.servicesFile, "services-file", gasops.DefaultServicesFile, "services file")

	start := &cobra.Command{
		Use:   "start",
		Short: "Run the supervisor in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSupervisor(cmd.Context(), fl)
		},
	}
	addStartFlags(start, fl)

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.stopSupervisor(cmd.Context(), cmd.OutOrStdout(), fl.stopTimeout)
		},
	}
	stop.Flags().DurationVar(&fl.stopTimeout, "timeout", defaultStopTimeout, "how long to wait for the supervisor to exit")

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Stop the running supervisor and start it again in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.stopSupervisor(cmd.Context(), cmd.OutOrStdout(), fl.stopTimeout); err != nil {
				return err
			}
			return a.runSupervisor(cmd.Context(), fl)
		},
	}
	addStartFlags(restart, fl)
	restart.Flags().DurationVar(&fl.stopTimeout, "timeout", defaultStopTimeout, "how long to wait for the old supervisor to exit")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded state of every instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}

	initConfig := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default services file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initServicesFile(cmd.OutOrStdout(), fl.servicesFile, fl.force)
		},
	}
	initConfig.Flags().BoolVar(&fl.force, "force", false, "overwrite an existing file (the old one is kept as .bak)")

	cmd.AddCommand(start, stop, restart, status, initConfig)
	return cmd
}

func addStartFlags(cmd *cobra.Command, fl *superviseFlags) {
	cmd.Flags().StringVar(&fl.strategy, "recovery-strategy", "", "service, instance or none")
	cmd.Flags().DurationVar(&fl.healthInterval, "health-interval", gasops.DefaultHealthInterval, "default health check period")
}

func (a *app) runSupervisor(ctx context.Context, fl *superviseFlags) error {
	strategy, err := gasops.ParseRecoveryStrategy(fl.strategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := gasops.NewSupervisor(
		gasops.WithStateDir(a.stateDir),
		gasops.WithServicesFile(fl.servicesFile),
		gasops.WithRecoveryStrategy(strategy),
		gasops.WithHealthInterval(fl.healthInterval),
	)
	if err := sup.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sup.Shutdown(); err != nil {
			a.log.Warn("supervisor shutdown", "error", err)
		}
	}()

	a.log.Info("supervisor running", "state_dir", a.stateDir, "services_file", fl.servicesFile, "pid", os.Getpid())
	return sup.Run(ctx)
}

// stopSupervisor sends SIGTERM to the supervisor recorded in the state
// directory and waits for it to exit. A supervisor that is not running is
// reported, not treated as an error.
func (a *app) stopSupervisor(ctx context.Context, out io.Writer, timeout time.Duration) error {
	pid, err := lockfile.Signal(a.stateDir, syscall.SIGTERM)
	if errors.Is(err, lockfile.ErrNotRunning) {
		fmt.Fprintln(out, "supervisor is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sent SIGTERM to supervisor (pid %d)\n", pid)

	err = wait.PollUntilContextTimeout(ctx, stopPollInterval, timeout, true, func(context.Context) (bool, error) {
		return !alive(pid), nil
	})
	if err != nil {
		return fmt.Errorf("supervisor pid %d still running after %s", pid, timeout)
	}
	fmt.Fprintln(out, "supervisor stopped")
	return nil
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// printStatus reads the journal, which the running supervisor writes on
// every health pass, so it works from any process.
func (a *app) printStatus(ctx context.Context, out io.Writer) error {
	pid, err := lockfile.ReadPID(a.stateDir)
	switch {
	case errors.Is(err, lockfile.ErrNotRunning):
		fmt.Fprintln(out, "supervisor: not running")
	case err != nil:
		return err
	case alive(pid):
		fmt.Fprintf(out, "supervisor: running (pid %d)\n", pid)
	default:
		fmt.Fprintf(out, "supervisor: not running (stale pid %d)\n", pid)
	}

	path := filepath.Join(a.stateDir, journal.FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "no journal yet")
		return nil
	}
	j, err := journal.Open(ctx, path, a.log)
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.LatestStatus(ctx)
	if err != nil {
		return err
	}
	recoveries, err := j.RecentRecoveries(ctx, recentRecoveries)
	if err != nil {
		return err
	}
	metrics, haveMetrics, err := j.LatestMetrics(ctx)
	if err != nil {
		return err
	}
	return writeStatus(out, records, recoveries, metrics, haveMetrics)
}

func writeStatus(out io.Writer, records []journal.StatusRecord, recoveries []journal.RecoveryRecord, m journal.SystemMetrics, haveMetrics bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSERVICE\tINSTANCE\tPID\tPORT\tSTATUS\tMEM MB\tCPU %\tREQS\tERRS\tSCORE\tLAST CHECK")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.1f\t%.1f\t%d\t%d\t%.0f\t%s\n",
			r.Service, shortID(r.InstanceID), r.PID, r.Port, r.Status,
			r.MemoryMB, r.CPUPercent, r.Requests, r.Errors, r.HealthScore,
			r.LastCheck.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	if haveMetrics {
		fmt.Fprintf(out, "\nhost at %s: cpu %.1f%%, memory %.1f%%, disk %.1f%%, %d active instances, error rate %.2f%%\n",
			m.Time.Local().Format(time.DateTime), m.CPUPercent, m.MemoryPercent, m.DiskPercent,
			m.ActiveInstances, m.ErrorRate)
	}

	if len(recoveries) > 0 {
		fmt.Fprintln(out, "\nrecent recoveries:")
		for _, r := range recoveries {
			result := "ok"
			if !r.Success {
				result = "failed"
			}
			fmt.Fprintf(out, "  %s  %s %s %s (%s) %s\n",
				r.Time.Local().Format(time.DateTime), r.Service, r.Type, result, r.Duration.Round(time.Millisecond), r.Details)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func initServicesFile(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := servicefile.Save(path, servicefile.Default()); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
