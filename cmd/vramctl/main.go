// Command vramctl runs a browser profile from RAM: the persistent
// profile directory is mirrored into volatile storage and shadowed by a
// bind mount, with archive backups for recovery.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vramctl/internal/catalog"
	"vramctl/internal/config"
	"vramctl/internal/event"
	"vramctl/internal/profile"
	"vramctl/internal/service"
	"vramctl/internal/stats"
	"vramctl/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// app carries the per-invocation wiring shared by all subcommands.
type app struct {
	paths    config.Paths
	verbose  bool
	quiet    bool
	yes      bool
	checksum bool
}

func run() int {
	a := &app{}
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "vramctl",
		Short:         "Run a browser profile from RAM with mirrored persistence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logLevel := slog.LevelWarn
			if a.verbose {
				logLevel = slog.LevelDebug
			} else if !a.quiet {
				logLevel = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			}))
			slog.SetDefault(logger)

			paths, err := config.Load()
			if err != nil {
				return err
			}
			a.paths = paths
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "vramctl %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&a.yes, "yes", "y", false, "assume yes for all confirmations")
	rootCmd.PersistentFlags().
		BoolVar(&a.checksum, "checksum", false, "compare file contents (BLAKE3) instead of mtime+size when mirroring")

	rootCmd.AddCommand(
		a.loadCmd(),
		a.saveCmd(),
		a.backupCmd(),
		a.restoreCmd(),
		a.restoreSelectCmd(),
		a.cleanBackupCmd(),
		a.purgeBackupCmd(),
		a.statusCmd(),
		a.checkRAMCmd(),
		a.installCmd(),
		a.uninstallCmd(),
		a.sudoHelpCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// confirm prompts for a yes/no answer, defaulting to no. The --yes flag
// answers every prompt affirmatively.
func (a *app) confirm(msg string) bool {
	if a.yes {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", msg)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// withProgress runs op while a presenter renders its progress events,
// in the background as the operation itself stays in the foreground.
func (a *app) withProgress(op func(m *profile.Manager) error) error {
	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Stats:     collector,
		Quiet:     a.quiet,
		Verbose:   a.verbose,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = presenter.Run(events) //nolint:errcheck // presenter error is non-fatal
	}()

	m := profile.NewManager(a.paths)
	m.Checksum = a.checksum
	m.Events = events
	m.Stats = collector

	err := op(m)
	close(events)
	wg.Wait()

	if !a.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}
	return err
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Mirror the profile into RAM and bind-mount it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if processUp := profile.NewManager(a.paths).ProcessRunning(); processUp {
				slog.Warn("browser is currently running", "process", a.paths.ProcessName)
				if !a.confirm("Browser is running; load anyway?") {
					fmt.Fprintln(os.Stdout, "Load cancelled.")
					return nil
				}
			}
			return a.withProgress(func(m *profile.Manager) error {
				res, err := m.Load(cmd.Context())
				if errors.Is(err, profile.ErrAlreadyLoaded) {
					fmt.Fprintln(os.Stdout, "Profile is already loaded in RAM.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Profile is now running from RAM at %s.\n", a.paths.Staging)
				fmt.Fprintln(os.Stdout, "Run 'vramctl save' before shutdown to persist changes.")
				return partialErr(res.Errors)
			})
		},
	}
}

func (a *app) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Unmount, mirror the RAM copy back to disk and remove it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.confirm("Mirror RAM profile to disk and remove the RAM copy?") {
				fmt.Fprintln(os.Stdout, "Save cancelled.")
				return nil
			}
			return a.withProgress(func(m *profile.Manager) error {
				res, err := m.Save(cmd.Context())
				if errors.Is(err, profile.ErrNotLoaded) {
					fmt.Fprintln(os.Stdout, "Profile is not loaded; nothing to save.")
					return nil
				}
				if err != nil {
					return err
				}
				if len(res.Errors) > 0 {
					fmt.Fprintf(os.Stderr, "Save was PARTIAL; RAM copy kept at %s. Resolve the failures and run save again.\n", a.paths.Staging)
					return partialErr(res.Errors)
				}
				fmt.Fprintln(os.Stdout, "Profile saved.")
				return nil
			})
		},
	}
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Archive the RAM-resident profile into the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProgress(func(m *profile.Manager) error {
				dest, res, err := m.Backup()
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Backup written to %s (%d entries, %s).\n",
					dest, res.Entries, stats.FormatBytes(res.Bytes))
				return partialErr(res.Errors)
			})
		},
	}
}

func (a *app) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Unpack the latest backup over the live profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, err := profile.NewManager(a.paths).Catalog().Latest()
			if err != nil {
				return err
			}
			return a.restoreEntry(latest)
		},
	}
}

func (a *app) restoreSelectCmd() *cobra.Command {
	var choose string
	cmd := &cobra.Command{
		Use:   "restore-select",
		Short: "Choose a backup interactively and unpack it",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := profile.NewManager(a.paths).Catalog().Sorted()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("%s: %w", a.paths.BackupDir, catalog.ErrEmpty)
			}

			var entry catalog.Entry
			if choose != "" {
				fmt.Fprint(os.Stdout, ui.ListBackups(entries))
				entry, err = ui.Choose(entries, choose)
			} else {
				entry, err = ui.ChooseInteractive(entries)
			}
			if errors.Is(err, ui.ErrCancelled) {
				fmt.Fprintln(os.Stdout, "Restore cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			return a.restoreEntry(entry)
		},
	}
	cmd.Flags().StringVar(&choose, "choose", "", "non-interactive selection: 1-based index, or 'q' to cancel")
	return cmd
}

func (a *app) restoreEntry(entry catalog.Entry) error {
	if !a.confirm(fmt.Sprintf("Overwrite the live profile with %s?", entry.Name)) {
		fmt.Fprintln(os.Stdout, "Restore cancelled.")
		return nil
	}
	return a.withProgress(func(m *profile.Manager) error {
		res, err := m.Restore(entry)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "Restore of %s was PARTIAL: %d entries failed.\n", entry.Name, len(res.Errors))
			return partialErr(res.Errors)
		}
		fmt.Fprintf(os.Stdout, "Restored %s (%d entries, %s).\n",
			entry.Name, res.Entries, stats.FormatBytes(res.Bytes))
		return nil
	})
}

func (a *app) cleanBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean-backup",
		Short: "Delete all backups except the newest",
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := profile.NewManager(a.paths).Catalog().KeepLatest()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %d old backup(s).\n", deleted)
			return nil
		},
	}
}

func (a *app) purgeBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-backup",
		Short: "Delete ALL backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.confirm("Delete ALL backup files?") {
				fmt.Fprintln(os.Stdout, "Purge cancelled.")
				return nil
			}
			deleted, err := profile.NewManager(a.paths).Catalog().PurgeAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Deleted %d backup(s).\n", deleted)
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report mount state, process state and backup summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := profile.NewManager(a.paths).Status()
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "RAM active  : %s\n", yesNo(st.Mounted))
			fmt.Fprintf(os.Stdout, "Browser up  : %s\n", yesNo(st.ProcessRunning))
			fmt.Fprintf(os.Stdout, "Backup path : %s\n", st.BackupDir)
			if st.BackupCount == 0 {
				fmt.Fprintln(os.Stdout, "Backups     : none")
				return nil
			}
			ageDays := int(st.LatestAge().Hours() / 24)
			fmt.Fprintf(os.Stdout, "Backups     : %d\n", st.BackupCount)
			fmt.Fprintf(os.Stdout, "Latest      : %s (%d day(s) old)\n", st.Latest.Name, ageDays)
			if ageDays > 7 {
				fmt.Fprintln(os.Stdout, "WARNING     : last backup is more than 7 days old")
			}
			return nil
		},
	}
}

func (a *app) checkRAMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-ram",
		Short: "Compare profile size against available RAM",
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := profile.NewManager(a.paths).CheckRAM()
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Profile size  : %s\n", stats.FormatBytes(check.ProfileBytes))
			fmt.Fprintf(os.Stdout, "Available RAM : %s\n", stats.FormatBytes(int64(check.AvailableBytes))) //nolint:gosec // G115: Available fits in int64
			fmt.Fprintf(os.Stdout, "Required RAM  : %s (2x rule)\n", stats.FormatBytes(check.RequiredBytes))
			if !check.Fits() {
				fmt.Fprintln(os.Stdout, "RAM insufficient")
				return &exitError{code: 1}
			}
			fmt.Fprintln(os.Stdout, "RAM OK")
			return nil
		},
	}
}

func (a *app) installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the systemd user unit for automatic load/save",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable path: %w", err)
			}
			unitPath, err := service.Install(execPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Unit written to %s.\nEnable it with:\n\n", unitPath)
			fmt.Fprintf(os.Stdout, "  systemctl --user daemon-reload\n  systemctl --user enable %s\n\n", service.UnitName)
			if a.confirm("Show optional password-less sudo instructions?") {
				fmt.Fprintln(os.Stdout, service.SudoHelp(a.paths))
			}
			return nil
		},
	}
}

func (a *app) uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the systemd user unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath, err := service.Uninstall()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Removed %s (disable with 'systemctl --user disable %s').\n",
				unitPath, service.UnitName)
			return nil
		},
	}
}

func (a *app) sudoHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sudo-help",
		Short: "Show optional password-less sudo mount instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(os.Stdout, service.SudoHelp(a.paths))
			return nil
		},
	}
}

// partialErr maps collected per-file errors onto exit code 1: the
// operation completed, but not for every entry.
func partialErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		slog.Error("entry failed", "error", err)
	}
	fmt.Fprintf(os.Stderr, "%d entries failed; see log output above.\n", len(errs))
	return &exitError{code: 1}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
