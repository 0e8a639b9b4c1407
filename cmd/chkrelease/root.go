package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fabacab/chkrelease/pkg/chkrelease/archive"
	"github.com/fabacab/chkrelease/pkg/chkrelease/audit"
	"github.com/fabacab/chkrelease/pkg/chkrelease/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "chkrelease <archive> [directory]",
		Short: "Audit installed files against a release archive",
		Long: `Chkrelease compares the contents of a release archive against the files
installed on disk and reports every member that was modified, removed,
or skipped.

The exit status is the number of modified entries (capped at 125), so
scripts can branch on it directly. Statuses 252-255 are reserved for
usage and archive faults.

The two positional arguments can be given in either order: a regular
file is the archive, a directory is the comparison root. When the
directory comes first, the on-disk tree supplies the reference copies
and the archive is the side being audited.

Examples:
  chkrelease release.tar                  # Audit the current directory
  chkrelease release.tar /srv/app         # Audit an install root
  chkrelease /srv/app release.tar.gz      # Directory first: swapped wording
  chkrelease -t -p release.tar /srv/app   # Totals plus progress snapshots
  chkrelease config show                  # Show configuration
  chkrelease history                      # View past audit runs`,
		Args:          cobra.ArbitraryArgs,
		RunE:          runAudit,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// auditStatus is the delta-count exit status of a completed run, set
	// by runAudit and returned by Execute when no error occurred.
	auditStatus int
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/chkrelease/config.yaml)")
	rootCmd.PersistentFlags().BoolP("totals", "t", false, "print counter totals to stderr when done")
	rootCmd.PersistentFlags().BoolP("messy", "m", false, "keep the scratch area after the run")
	rootCmd.PersistentFlags().BoolP("progress", "p", false, "periodic progress snapshots (implies --totals)")
	rootCmd.PersistentFlags().BoolP("untracked", "u", false, "report files on disk that are not archive members")
	rootCmd.PersistentFlags().String("scratch-dir", "", "parent directory for the scratch area (default: system temp)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "echo logs to stderr")

	// Bind flags to viper
	_ = viper.BindPFlag("totals", rootCmd.PersistentFlags().Lookup("totals"))
	_ = viper.BindPFlag("messy", rootCmd.PersistentFlags().Lookup("messy"))
	_ = viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))
	_ = viper.BindPFlag("untracked", rootCmd.PersistentFlags().Lookup("untracked"))
	_ = viper.BindPFlag("scratch_dir", rootCmd.PersistentFlags().Lookup("scratch-dir"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		// Add config paths in order of precedence
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "chkrelease"))
		}

		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "chkrelease"))
		}
	}

	viper.SetEnvPrefix("CHKRELEASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// statusError carries an explicit exit status out through cobra's error
// return.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	return e.err.Error()
}

func (e *statusError) Unwrap() error {
	return e.err
}

// missingParameter builds the error for a required argument that was not
// supplied, carrying its reserved exit status.
func missingParameter(format string, args ...interface{}) error {
	return &statusError{
		status: audit.ExitMissingParameter,
		err:    fmt.Errorf(format, args...),
	}
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		return classifyError(err)
	}
	return auditStatus
}

// classifyError maps an error onto the reserved exit-status range.
func classifyError(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}

	var accessErr *archive.AccessError
	var extractErr *archive.ExtractError
	if errors.As(err, &accessErr) || errors.As(err, &extractErr) {
		return audit.ExitArchiveFault
	}

	// pflag parse failures surface as plain errors from Execute.
	msg := err.Error()
	for _, p := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"bad flag syntax",
		"flag needs an argument",
		"invalid argument",
	} {
		if strings.HasPrefix(msg, p) {
			return audit.ExitUsage
		}
	}

	return audit.ExitUnknown
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "chkrelease: "+format+"\n", args...)
}
