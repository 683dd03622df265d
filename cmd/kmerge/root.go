package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kmerge/internal/config"
	kerrors "kmerge/internal/errors"
	"kmerge/internal/slogutil"
	"kmerge/internal/version"
)

// app is the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// persistent flags
	configPath string
	verbosity  int
	quiet      bool
	logFormat  string
	logFile    string

	workDir   string
	loaded    *config.LoadResult
	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	m := &mergeFlags{}
	root := &cobra.Command{
		Use:   "kmerge [flags] <output> <input>...",
		Short: "kmerge - merge pre-sorted line files",
		Long: `kmerge merges any number of pre-sorted, line-delimited files of strings or
integers into one sorted output file. Lines that do not parse or that break
their file's order are skipped and reported; unreadable files are dropped.

Inputs ending in .gz or .zst (or carrying their magic bytes) are
decompressed transparently. The output is compressed by extension.

An output named like a subcommand (history, config, version) must be
written as a path, e.g. ./history, or follow --.

Examples:
  kmerge -i out.txt in1.txt in2.txt in3.txt
  kmerge -d -s merged.txt.gz a.txt b.txt
  kmerge --plan nightly.toml
  kmerge history`,
		Version:       version.Info(),
		Args:          mergeArgs(m),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd, m, args)
		},
	}
	root.SetVersionTemplate("kmerge {{.Version}}\n")
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return kerrors.New(kerrors.InvalidArguments, "bad flags", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default .kmerge/config.json, or $KMERGE_CONFIG_PATH)")
	pf.CountVarP(&a.verbosity, "verbose", "v", "More log output (-v info, -vv debug)")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "No log output on stderr")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&a.logFile, "log-file", "", "Also log to this file (size-rotated)")

	m.register(root)

	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

// setup loads configuration and builds the logger. Commands call it first.
func (a *app) setup(cmd *cobra.Command) error {
	if a.loaded != nil {
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return kerrors.New(kerrors.InternalError, "cannot determine working directory", err)
	}
	a.workDir = wd

	loaded, err := config.LoadConfigWithDetails(wd, a.configPath)
	if err != nil {
		return kerrors.New(kerrors.ConfigInvalid, "cannot load configuration", err)
	}
	a.loaded = loaded
	cfg := loaded.Config

	consoleLevel := slogutil.LevelFromString(cfg.Logging.Level)
	if cmd.Flags().Changed("verbose") || cmd.Flags().Changed("quiet") {
		consoleLevel = slogutil.LevelFromVerbosity(a.verbosity, a.quiet)
	}
	format, err := slogutil.ParseFormat(firstNonEmpty(a.logFormat, cfg.Logging.Format))
	if err != nil {
		return kerrors.New(kerrors.InvalidArguments, "bad --log-format", err)
	}

	logger, closer, err := slogutil.Setup(slogutil.Options{
		Console:      a.stderr,
		ConsoleLevel: consoleLevel,
		Format:       format,
		File:         firstNonEmpty(a.logFile, cfg.Logging.File),
		FileLevel:    slogutil.LevelFromString(cfg.Logging.Level),
		MaxSize:      cfg.Logging.MaxSize,
		MaxBackups:   cfg.Logging.MaxBackups,
	})
	if err != nil {
		return kerrors.New(kerrors.ConfigInvalid, "cannot set up logging", err)
	}
	a.logger, a.logCloser = logger, closer

	for _, o := range loaded.EnvOverrides {
		logger.Debug("environment override", "var", o.EnvVar, "path", o.Path)
	}
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// run executes one kmerge invocation and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) kerrors.ExitCode {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return kerrors.ExitSuccess
	}

	var ke *kerrors.Error
	if !errors.As(err, &ke) && errors.Is(err, context.Canceled) {
		ke = kerrors.New(kerrors.Cancelled, "interrupted", err)
		err = ke
	}
	fmt.Fprintf(stderr, "kmerge: %v\n", err)
	if ke != nil {
		for _, fix := range ke.SuggestedFixes {
			if fix.Command != "" {
				fmt.Fprintf(stderr, "  hint: %s (%s)\n", fix.Description, fix.Command)
			} else {
				fmt.Fprintf(stderr, "  hint: %s\n", fix.Description)
			}
		}
	}
	return kerrors.ExitCodeFor(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
