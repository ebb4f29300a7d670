package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/thesis-analysis/internal/adapters/mcp"
	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print the analysis of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			view, err := app.QueryUC.GetAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <document-id>",
		Short: "Run the current analysis attempt in this process and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			status, err := app.AnalyzeUC.RunAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], status)
			return nil
		},
	}
}

func newReanalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze <document-id>",
		Short: "Start a fresh analysis attempt and queue it for the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if app.Inproc {
				return fmt.Errorf("reanalyze needs a shared queue; QUEUE_BACKEND=inproc would drop the request")
			}
			view, err := app.QueryUC.Reanalyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newStuckCommand(ctx *commandContext) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
		requeue   bool
	)

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List pending documents that have not moved for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			docs, err := app.QueryUC.ListStuck(cmd.Context(), time.Now().UTC().Add(-olderThan), limit)
			if err != nil {
				return err
			}
			if err := writeStuckTable(cmd.OutOrStdout(), docs, time.Now().UTC()); err != nil {
				return err
			}
			if !requeue {
				return nil
			}
			if app.Inproc {
				return fmt.Errorf("--requeue needs a shared queue; QUEUE_BACKEND=inproc would drop the requests")
			}
			for _, doc := range docs {
				if err := app.QueryUC.Requeue(cmd.Context(), doc); err != nil {
					return fmt.Errorf("requeue %s: %w", doc.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d document(s)\n", len(docs))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Only list documents not updated within this duration")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of documents to list")
	cmd.Flags().BoolVar(&requeue, "requeue", false, "Publish a new analysis request for every listed document")
	return cmd
}

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve analysis tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			var opts []mcpadapter.Option
			if app.Inproc {
				// An in-process queue has no consumer here, so reanalysis would be lost.
				opts = append(opts, mcpadapter.ReadOnly())
			}
			return mcpadapter.NewServer(app.QueryUC, opts...).ServeStdio()
		},
	}
}

func writeStuckTable(w io.Writer, docs []domain.Document, now time.Time) error {
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "no stuck documents")
		return err
	}
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		idle := now.Sub(doc.UpdatedAt).Truncate(time.Second)
		rows = append(rows, []string{doc.ID, doc.Filename, string(doc.AnalysisStatus), idle.String()})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"ID", "Filename", "Status", "Idle"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
