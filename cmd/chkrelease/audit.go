package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fabacab/chkrelease/pkg/chkrelease/audit"
	"github.com/fabacab/chkrelease/pkg/chkrelease/config"
	"github.com/fabacab/chkrelease/pkg/chkrelease/logging"
	"github.com/fabacab/chkrelease/pkg/chkrelease/manifest"
	"github.com/fabacab/chkrelease/pkg/chkrelease/scratch"
	"github.com/fabacab/chkrelease/pkg/chkrelease/types"
)

// lowSpaceWarning is the free-space threshold below which the scratch
// area's filesystem is considered cramped. One member is staged at a
// time, so this is a warning, not a hard limit.
const lowSpaceWarning = 64 << 20 // 64 MiB

// roles is the resolved assignment of the positional arguments.
type roles struct {
	archive string
	root    string
	swapped bool
}

// resolveRoles assigns the positional arguments by inspecting what they
// are on disk: a regular file is the archive, a directory is the
// comparison root. The directory-first form requires the archive as the
// second argument.
func resolveRoles(args []string) (roles, error) {
	if len(args) == 0 {
		return roles{}, missingParameter("an archive to audit against is required")
	}
	if len(args) > 2 {
		return roles{}, missingParameter("too many arguments: expected <archive> [directory]")
	}

	first, err := config.ExpandPath(args[0])
	if err != nil {
		return roles{}, err
	}

	info, err := os.Stat(first)
	if err != nil {
		// An unstatable first argument is treated as the archive path so
		// the failure classifies as an archive fault, not a usage one.
		return roles{archive: first, root: config.DefaultRoot}, nil
	}

	if info.IsDir() {
		// Directory first: the on-disk tree is the reference side.
		if len(args) < 2 {
			return roles{}, missingParameter("directory-first form requires the archive as the second argument")
		}
		archivePath, err := config.ExpandPath(args[1])
		if err != nil {
			return roles{}, err
		}
		return roles{archive: archivePath, root: first, swapped: true}, nil
	}

	r := roles{archive: first, root: config.DefaultRoot}
	if len(args) == 2 {
		r.root, err = config.ExpandPath(args[1])
		if err != nil {
			return roles{}, err
		}
	}
	return r, nil
}

// runAudit is the root command handler.
func runAudit(_ *cobra.Command, args []string) error {
	r, err := resolveRoles(args)
	if err != nil {
		return err
	}

	if err := initLogging(); err != nil {
		return err
	}
	defer func() { _ = logging.Close() }()

	messy := viper.GetBool("messy")
	scratchOpts := []scratch.Option{scratch.WithKeep(messy)}
	scratchBase := os.TempDir()
	if base := viper.GetString("scratch_dir"); base != "" {
		expanded, err := config.ExpandPath(base)
		if err != nil {
			return err
		}
		scratchBase = expanded
		scratchOpts = append(scratchOpts, scratch.WithBase(expanded))
	}
	area := scratch.New(scratchOpts...)
	defer func() {
		if area.Keep() && area.Path() != "" {
			fmt.Fprintf(os.Stderr, "chkrelease: scratch area kept: %s\n", area.Path())
		}
		if err := area.Release(); err != nil {
			printVerbose("scratch release failed: %v", err)
		}
	}()

	preflightSpace(scratchBase)

	auditor := audit.New(audit.Options{
		Archive:          r.archive,
		Root:             r.root,
		Swapped:          r.swapped,
		Progress:         viper.GetBool("progress"),
		ProgressInterval: viper.GetInt("progress_interval"),
		Untracked:        viper.GetBool("untracked"),
		Scratch:          area,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM stop the loop at the next entry boundary; the
	// progress signal asks for a snapshot without stopping anything.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "chkrelease: interrupted, stopping at the next entry")
		cancel()
	}()
	stopProgressSignal := notifyProgressSignal(auditor)
	defer stopProgressSignal()

	res, runErr := auditor.Run(ctx)

	// Totals are reported on every exit path. A fatal abort or an
	// interrupted run always reports them, flags or not: the partial
	// counters are the only record of how far the run got.
	aborted := runErr != nil || (res != nil && res.Interrupted)
	if viper.GetBool("totals") || viper.GetBool("progress") || aborted {
		auditor.Counters().Report(os.Stderr)
	}

	recordRun(r, res, runErr)

	if runErr != nil {
		return runErr
	}

	if res.Interrupted {
		printVerbose("interrupted after %d of %d entries", res.Counters.Audited, res.Counters.Total)
	}
	auditStatus = res.ExitStatus()
	return nil
}

// initLogging wires the logging system from the merged configuration.
// Verbose mode echoes logs to stderr; the log file is always written.
func initLogging() error {
	cfg := logging.Config{
		Level:      viper.GetString("logging.level"),
		Path:       viper.GetString("logging.path"),
		Components: viper.GetStringMapString("logging.components"),
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if getVerbose() {
		cfg.ConsoleLevel = "debug"
	}

	if err := logging.Init(cfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	return nil
}

// preflightSpace checks free space on the filesystem that will hold the
// scratch area and warns when it looks cramped. The area itself is still
// acquired lazily on the first materialization. Unsupported platforms
// are silently skipped.
func preflightSpace(dir string) {
	free, err := scratch.FreeBytes(dir)
	if err != nil {
		if !errors.Is(err, errors.ErrUnsupported) {
			printVerbose("free-space check failed: %v", err)
		}
		return
	}

	printVerbose("scratch area %s (%s free)", dir, types.FormatSize(free))
	if free < lowSpaceWarning {
		fmt.Fprintf(os.Stderr, "chkrelease: warning: only %s free in scratch area %s\n",
			types.FormatSize(free), dir)
	}
}

// recordRun writes the run to the history manifest. Best effort: an
// unrecordable run is logged, never failed.
func recordRun(r roles, res *audit.Result, runErr error) {
	if res == nil {
		return
	}

	cfg, err := config.Load()
	if err != nil || !cfg.History.Enabled {
		return
	}

	dir, err := config.HistoryDir(cfg)
	if err != nil {
		return
	}
	m, err := manifest.New(dir)
	if err != nil {
		return
	}

	record := types.RunRecord{
		Archive:     r.archive,
		Root:        r.root,
		Swapped:     r.swapped,
		Counters:    res.Counters,
		Interrupted: res.Interrupted,
		Elapsed:     res.Elapsed,
	}
	if runErr != nil {
		record.ExitStatus = classifyError(runErr)
	} else {
		record.ExitStatus = res.ExitStatus()
	}

	if _, err := m.LogRun(record); err != nil {
		logging.Get("audit").Warn("failed to record run history", "error", err)
		return
	}

	retention := cfg.History.RetentionDays
	if retention <= 0 {
		retention = config.DefaultRetentionDays
	}
	if err := m.Cleanup(retention); err != nil {
		logging.Get("audit").Warn("history cleanup failed", "error", err)
	}
}
