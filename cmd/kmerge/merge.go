package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"kmerge/internal/codec"
	"kmerge/internal/compression"
	"kmerge/internal/config"
	kerrors "kmerge/internal/errors"
	"kmerge/internal/inputs"
	"kmerge/internal/jobs"
	"kmerge/internal/merge"
	"kmerge/internal/paths"
	"kmerge/internal/plan"
	"kmerge/internal/report"
	"kmerge/internal/sink"
	"kmerge/internal/source"
)

type mergeFlags struct {
	asc         bool
	desc        bool
	strings     bool
	ints        bool
	reader      string
	compression string
	report      string
	planPath    string
	noJournal   bool
}

func (m *mergeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&m.asc, "asc", "a", false, "Inputs and output are ascending (default)")
	f.BoolVarP(&m.desc, "desc", "d", false, "Inputs and output are descending")
	f.BoolVarP(&m.strings, "strings", "s", false, "Lines are strings, compared bytewise")
	f.BoolVarP(&m.ints, "ints", "i", false, "Lines are base-10 integers")
	f.StringVar(&m.reader, "reader", "", "Input reader: cursor or rescan")
	f.StringVar(&m.compression, "compression", "", "Output compression: auto, none, gzip or zstd")
	f.StringVar(&m.report, "report", "", "Write a run report (.json, .yaml or .toml)")
	f.StringVar(&m.planPath, "plan", "", "Read output, inputs and settings from a TOML plan")
	f.BoolVar(&m.noJournal, "no-journal", false, "Do not record this run in the history")
}

// mergeArgs checks operand counts once flags are parsed. A plan supplies
// the operands itself.
func mergeArgs(m *mergeFlags) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if m.planPath != "" {
			if len(args) == 1 {
				return kerrors.Newf(kerrors.InvalidArguments, "with --plan, pass either no operands or an output and at least one input")
			}
			return nil
		}
		switch len(args) {
		case 0:
			return kerrors.Newf(kerrors.InvalidArguments, "missing output file and input files")
		case 1:
			return kerrors.Newf(kerrors.InvalidArguments, "missing input files after output %q", args[0])
		}
		return nil
	}
}

// settings is the fully resolved configuration of one merge.
type settings struct {
	Output      string
	Inputs      []string
	Order       merge.Order
	Kind        codec.Kind
	Reader      source.Strategy
	Compression compression.Format
	Report      string
	MaxNotices  int
	Journal     bool
	JournalPath string
	Retention   time.Duration
}

// resolveSettings applies, from strongest to weakest: flags, environment,
// plan, config file, built-in defaults.
func resolveSettings(cmd *cobra.Command, m *mergeFlags, args []string, loaded *config.LoadResult, p *plan.Plan) (*settings, error) {
	cfg := loaded.Config
	invalid := func(format string, a ...any) error {
		return kerrors.Newf(kerrors.InvalidArguments, format, a...)
	}
	flags := cmd.Flags()

	// pick returns the first set layer for a config path.
	pick := func(flagValue string, flagSet bool, path, planValue, cfgValue string) string {
		switch {
		case flagSet:
			return flagValue
		case loaded.Overridden(path):
			return cfgValue
		case planValue != "":
			return planValue
		default:
			return cfgValue
		}
	}
	var planOrder, planType, planReader, planCompression, planReport string
	if p != nil {
		planOrder, planType, planReader = p.Order, p.Type, p.Reader
		planCompression, planReport = p.Compression, p.Report
	}

	s := &settings{
		MaxNotices:  cfg.Report.MaxNotices,
		Journal:     cfg.Journal.Enabled && !m.noJournal,
		JournalPath: cfg.Journal.Path,
		Retention:   time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour,
	}

	if m.asc && m.desc {
		return nil, invalid("order passed 2 times: use only one of -a and -d")
	}
	orderFlag := ""
	if m.asc {
		orderFlag = "asc"
	} else if m.desc {
		orderFlag = "desc"
	}
	order, err := merge.ParseOrder(pick(orderFlag, orderFlag != "", "merge.order", planOrder, cfg.Merge.Order))
	if err != nil {
		return nil, invalid("%v", err)
	}
	s.Order = order

	if m.strings && m.ints {
		return nil, invalid("type passed 2 times: use only one of -s and -i")
	}
	typeFlag := ""
	if m.strings {
		typeFlag = "text"
	} else if m.ints {
		typeFlag = "int"
	}
	typ := pick(typeFlag, typeFlag != "", "merge.type", planType, cfg.Merge.Type)
	if typ == "" {
		return nil, invalid("missing value type: pass -s for strings or -i for integers")
	}
	if s.Kind, err = codec.ParseKind(typ); err != nil {
		return nil, invalid("%v", err)
	}

	reader := pick(m.reader, flags.Changed("reader"), "merge.reader", planReader, cfg.Merge.Reader)
	if s.Reader, err = source.ParseStrategy(reader); err != nil {
		return nil, invalid("%v", err)
	}

	comp := pick(m.compression, flags.Changed("compression"), "output.compression", planCompression, cfg.Output.Compression)
	if s.Compression, err = compression.ParseFormat(comp); err != nil {
		return nil, invalid("%v", err)
	}

	s.Report = pick(m.report, flags.Changed("report"), "report.path", planReport, cfg.Report.Path)
	if s.Report != "" {
		if _, err := report.EncodingFromPath(s.Report); err != nil {
			return nil, invalid("%v", err)
		}
	}

	if len(args) > 0 {
		s.Output, s.Inputs = args[0], args[1:]
	} else if p != nil {
		s.Output, s.Inputs = p.Output, p.Inputs
	}
	if s.Output == "" {
		return nil, invalid("missing output file")
	}
	if len(s.Inputs) == 0 {
		return nil, invalid("missing input files")
	}
	return s, nil
}

func (a *app) runMerge(cmd *cobra.Command, m *mergeFlags, args []string) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := a.logger

	var p *plan.Plan
	if m.planPath != "" {
		loadedPlan, err := plan.Load(m.planPath)
		if err != nil {
			return kerrors.New(kerrors.PlanInvalid, "cannot use plan", err)
		}
		p = loadedPlan
		logger.Debug("plan loaded", "path", p.Path, "inputs", len(p.Inputs))
	}

	s, err := resolveSettings(cmd, m, args, a.loaded, p)
	if err != nil {
		return err
	}
	return executeMerge(ctx, logger, s)
}

// executeMerge runs one merge end to end: input validation, journal,
// output, engine, report.
func executeMerge(ctx context.Context, logger *slog.Logger, s *settings) error {
	started := time.Now()
	runID := report.NewRunID()
	logger = logger.With("run", shortID(runID))

	checked, err := inputs.Validate(ctx, s.Inputs, s.Output)
	if checked != nil {
		for _, prob := range checked.Problems {
			logger.Warn("skipping input", "file", prob.Path, "reason", prob.String())
		}
	}
	if err != nil {
		return err
	}
	if err := checkReportPath(s.Report, s.Output, checked.Valid); err != nil {
		return err
	}
	if checked.SingleInput() {
		logger.Warn("only one valid input, output will be a filtered copy", "file", checked.Valid[0].Path)
	}

	rec := openRecorder(logger, s, runID, checked.Paths())
	defer rec.close()

	out, err := sink.Create(s.Output, s.Compression)
	if err != nil {
		werr := kerrors.New(kerrors.OutputUnwritable, fmt.Sprintf("cannot create output %s", s.Output), err)
		rec.fail(0, werr, nil)
		return werr
	}

	sources := make([]source.LineSource, len(checked.Valid))
	for i, in := range checked.Valid {
		sources[i] = source.Open(in.Path, s.Reader)
	}
	collector := report.NewCollector(logger, s.MaxNotices)
	opts := merge.Options{Order: s.Order, Reporter: collector, Logger: logger}

	var stats merge.Stats
	switch s.Kind {
	case codec.KindInt:
		stats, err = merge.Merge[int](ctx, codec.Int{}, sources, out, opts)
	default:
		stats, err = merge.Merge[string](ctx, codec.Text{}, sources, out, opts)
	}
	err = classifyMergeError(s.Output, err)

	rep := report.Build(report.Run{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Order:      s.Order,
		Type:       string(s.Kind),
		Reader:     string(s.Reader),
		Output: report.OutputSummary{
			Path:        s.Output,
			Compression: string(s.Compression.Resolve(outputPathForFormat(s.Output))),
			Lines:       out.Lines(),
			Bytes:       out.Bytes(),
			Digest:      out.Digest(),
		},
		Stats:    stats,
		Rejected: checked.Problems,
		Err:      err,
	}, collector)

	var reportErr error
	if s.Report != "" {
		if reportErr = rep.WriteFile(s.Report); reportErr != nil {
			logger.Error("cannot write report", "path", s.Report, "error", reportErr)
		} else {
			logger.Debug("report written", "path", s.Report)
		}
	}

	switch {
	case err == nil:
		rec.complete(out.Lines(), rep)
	case kerrors.CodeOf(err) == kerrors.Cancelled:
		rec.cancel(out.Lines())
	default:
		rec.fail(out.Lines(), err, rep)
	}

	if err != nil {
		return err
	}
	logger.Info("merge complete",
		"output", s.Output,
		"lines", out.Lines(),
		"sources", len(sources),
		"skipped_type", collector.Count(merge.NoticeDecodeFailure),
		"skipped_order", collector.Count(merge.NoticeOrderViolation),
		"unreadable", collector.Count(merge.NoticeReadError),
		"elapsed", time.Since(started).Round(time.Millisecond))
	if reportErr != nil {
		return kerrors.New(kerrors.InternalError, "merge succeeded but the report could not be written", reportErr)
	}
	return nil
}

// checkReportPath refuses a report destination that would replace the
// output or one of the inputs.
func checkReportPath(reportPath, output string, valid []inputs.Input) error {
	if reportPath == "" {
		return nil
	}
	if output != sink.Stdout && paths.Same(reportPath, output) {
		return kerrors.Newf(kerrors.InvalidArguments, "report %s is also the output", reportPath)
	}
	for _, in := range valid {
		if paths.Same(reportPath, in.Path) {
			return kerrors.Newf(kerrors.InvalidArguments, "report %s is also input %s", reportPath, in.Path)
		}
	}
	return nil
}

func classifyMergeError(output string, err error) error {
	if err == nil {
		return nil
	}
	var oe *merge.OutputError
	switch {
	case errors.As(err, &oe):
		return kerrors.New(kerrors.OutputUnwritable, fmt.Sprintf("cannot write output %s", output), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kerrors.New(kerrors.Cancelled, "merge interrupted", err)
	default:
		return kerrors.New(kerrors.InternalError, "merge failed", err)
	}
}

// outputPathForFormat hides the stdout marker from extension sniffing.
func outputPathForFormat(output string) string {
	if output == sink.Stdout {
		return ""
	}
	return output
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// recorder writes a run to the journal. A journal that cannot be opened
// only costs the history entry; the merge still runs.
type recorder struct {
	logger    *slog.Logger
	store     *jobs.Store
	job       *jobs.Job
	retention time.Duration
}

func openRecorder(logger *slog.Logger, s *settings, runID string, inputPaths []string) *recorder {
	r := &recorder{logger: logger, retention: s.Retention}
	if !s.Journal {
		return r
	}
	dbPath := s.JournalPath
	if dbPath == "" {
		p, err := paths.DefaultJournalPath()
		if err != nil {
			logger.Warn("run history disabled", "error", err)
			return r
		}
		dbPath = p
	}
	store, err := jobs.OpenStore(dbPath, logger)
	if err != nil {
		logger.Warn("run history disabled", "path", dbPath, "error", err)
		return r
	}

	job := jobs.NewJob(runID, s.Output, inputPaths, s.Order.String(), string(s.Kind))
	job.MarkStarted()
	if err := store.CreateJob(job); err != nil {
		logger.Warn("run history disabled", "path", dbPath, "error", err)
		_ = store.Close()
		return r
	}
	r.store, r.job = store, job
	return r
}

func (r *recorder) complete(lines int, rep *report.Report) {
	if r.job == nil {
		return
	}
	if err := r.job.MarkCompleted(lines, reportJSON(r.logger, rep)); err != nil {
		r.logger.Warn("cannot encode run result", "error", err)
	}
	r.save()
}

func (r *recorder) fail(lines int, err error, rep *report.Report) {
	if r.job == nil {
		return
	}
	var result any
	if rep != nil {
		result = reportJSON(r.logger, rep)
	}
	if encErr := r.job.MarkFailed(lines, err, result); encErr != nil {
		r.logger.Warn("cannot encode run result", "error", encErr)
	}
	r.save()
}

func (r *recorder) cancel(lines int) {
	if r.job == nil {
		return
	}
	r.job.MarkCancelled(lines)
	r.save()
}

func (r *recorder) save() {
	if err := r.store.UpdateJob(r.job); err != nil {
		r.logger.Warn("cannot record run", "error", err)
	}
}

func (r *recorder) close() {
	if r.store == nil {
		return
	}
	if r.retention > 0 {
		removed, err := r.store.CleanupOldJobs(r.retention)
		if err != nil {
			r.logger.Debug("history cleanup failed", "error", err)
		} else if removed > 0 {
			r.logger.Debug("history cleanup", "removed", removed)
		}
	}
	_ = r.store.Close()
}

func reportJSON(logger *slog.Logger, rep *report.Report) any {
	s, err := rep.JSON()
	if err != nil {
		logger.Warn("cannot encode run report", "error", err)
		return nil
	}
	return s
}
