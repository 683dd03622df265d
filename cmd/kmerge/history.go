package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	kerrors "kmerge/internal/errors"
	"kmerge/internal/jobs"
	"kmerge/internal/paths"
	"kmerge/internal/report"
)

// HistoryShowResponse is the JSON form of `kmerge history show`.
type HistoryShowResponse struct {
	*jobs.Job
	Result *report.Report `json:"result,omitempty"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		format string
		limit  int
		status string
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded merge runs",
		Long: `List merge runs recorded in the run journal, newest first.

Examples:
  kmerge history
  kmerge history --status failed
  kmerge history --limit 50 --format json
  kmerge history show 3f2a9c1e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			of, err := parseOutputFormat(format)
			if err != nil {
				return kerrors.New(kerrors.InvalidArguments, "bad --format", err)
			}
			opts := jobs.ListJobsOptions{Limit: limit}
			if status != "" {
				for _, s := range strings.Split(status, ",") {
					opts.Status = append(opts.Status, jobs.JobStatus(strings.TrimSpace(s)))
				}
			}

			store, err := a.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			resp, err := store.ListJobs(opts)
			if err != nil {
				return kerrors.New(kerrors.JournalUnavailable, "cannot list runs", err)
			}
			if of == FormatJSON {
				out, err := formatJSON(resp)
				if err != nil {
					return kerrors.New(kerrors.InternalError, "cannot render runs", err)
				}
				fmt.Fprintln(a.stdout, out)
				return nil
			}
			return writeHistoryTable(a.stdout, resp)
		},
	}
	historyCmd.Flags().StringVar(&format, "format", "human", "Output format (json, human)")
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (at most 100)")
	historyCmd.Flags().StringVar(&status, "status", "", "Filter by status (running, completed, failed, cancelled)")

	var showFormat string
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Long: `Show a recorded run and its report. A unique prefix of the run id is enough.

Examples:
  kmerge history show 3f2a9c1e
  kmerge history show 3f2a --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			of, err := parseOutputFormat(showFormat)
			if err != nil {
				return kerrors.New(kerrors.InvalidArguments, "bad --format", err)
			}
			store, err := a.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.FindJob(args[0])
			if errors.Is(err, jobs.ErrAmbiguousID) {
				return kerrors.New(kerrors.InvalidArguments, "run id prefix matches more than one run", err)
			}
			if err != nil {
				return kerrors.New(kerrors.JournalUnavailable, "cannot look up run", err)
			}
			if job == nil {
				return kerrors.Newf(kerrors.RunNotFound, "no recorded run matches %q", args[0])
			}

			resp := HistoryShowResponse{Job: job}
			if job.Result != "" {
				var rep report.Report
				if err := json.Unmarshal([]byte(job.Result), &rep); err != nil {
					a.logger.Warn("stored run report is unreadable", "run", job.ID, "error", err)
				} else {
					resp.Result = &rep
				}
			}
			if of == FormatJSON {
				out, err := formatJSON(resp)
				if err != nil {
					return kerrors.New(kerrors.InternalError, "cannot render run", err)
				}
				fmt.Fprintln(a.stdout, out)
				return nil
			}
			return writeRunDetail(a.stdout, resp)
		},
	}
	showCmd.Flags().StringVar(&showFormat, "format", "human", "Output format (json, human)")

	historyCmd.AddCommand(showCmd)
	return historyCmd
}

func (a *app) openJournal() (*jobs.Store, error) {
	dbPath := a.loaded.Config.Journal.Path
	if dbPath == "" {
		p, err := paths.DefaultJournalPath()
		if err != nil {
			return nil, kerrors.New(kerrors.JournalUnavailable, "cannot locate run journal", err)
		}
		dbPath = p
	}
	store, err := jobs.OpenStore(dbPath, a.logger)
	if err != nil {
		return nil, kerrors.New(kerrors.JournalUnavailable, "cannot open run journal", err)
	}
	return store, nil
}

func writeHistoryTable(w io.Writer, resp *jobs.ListJobsResponse) error {
	if len(resp.Jobs) == 0 {
		_, err := fmt.Fprintln(w, "No recorded runs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tINPUTS\tLINES\tOUTPUT")
	for _, j := range resp.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(j.ID), j.Status, j.CreatedAt.Local().Format(time.DateTime), j.InputCount, j.LinesWritten, j.Output)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if resp.TotalCount > len(resp.Jobs) {
		fmt.Fprintf(w, "\n%d of %d runs shown\n", len(resp.Jobs), resp.TotalCount)
	}
	return nil
}

func writeRunDetail(w io.Writer, resp HistoryShowResponse) error {
	j := resp.Job
	fmt.Fprintf(w, "Run:      %s\n", j.ID)
	fmt.Fprintf(w, "Status:   %s\n", j.Status)
	fmt.Fprintf(w, "Created:  %s\n", j.CreatedAt.Local().Format(time.DateTime))
	if d := j.Duration(); d > 0 {
		fmt.Fprintf(w, "Duration: %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Order:    %s\n", j.Order)
	fmt.Fprintf(w, "Type:     %s\n", j.Type)
	fmt.Fprintf(w, "Output:   %s (%d lines)\n", j.Output, j.LinesWritten)
	if j.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", j.Error)
	}

	rep := resp.Result
	if rep == nil {
		fmt.Fprintln(w, "Inputs:")
		for _, in := range j.Inputs {
			fmt.Fprintf(w, "  %s\n", in)
		}
		return nil
	}
	if rep.Output.Digest != "" {
		fmt.Fprintf(w, "Digest:   %s\n", rep.Output.Digest)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tEMITTED\tBAD TYPE\tBAD ORDER\tENDED")
	for _, s := range rep.Sources {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s at line %d\n",
			s.Path, s.Emitted, s.SkippedDecode, s.SkippedOrder, s.Retired, s.RetiredAtLine)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range rep.Rejected {
		fmt.Fprintf(w, "rejected: %s (%s)\n", r.Path, r.Reason)
	}
	if n := len(rep.Notices); n > 0 {
		fmt.Fprintf(w, "\n%d notices", n)
		if rep.DroppedNotices > 0 {
			fmt.Fprintf(w, " (%d more not kept)", rep.DroppedNotices)
		}
		fmt.Fprintln(w)
	}
	return nil
}
