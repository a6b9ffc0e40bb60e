package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/conversation"
	"github.com/zulandar/docchat/internal/transcript"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show recorded chat sessions",
		Long:  "Lists recent sessions from the transcript, or prints one session's turns when given a session ID or unique prefix.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runHistoryList(cmd, configPath, limit)
			}
			return runHistoryShow(cmd, configPath, args[0], noColor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", transcript.DefaultListLimit, "maximum sessions to list")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func openHistory(configPath string) (*runtime, error) {
	rt, err := newRuntime(configPath, nil)
	if err != nil {
		return nil, err
	}
	if rt.transcript == nil {
		rt.Close()
		return nil, fmt.Errorf("transcript is disabled (transcript.driver is %q)", rt.cfg.Transcript.Driver)
	}
	return rt, nil
}

func runHistoryList(cmd *cobra.Command, configPath string, limit int) error {
	rt, err := openHistory(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	sessions, err := rt.transcript.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tUPDATED\tTURNS\tRESETS\tDOCUMENT")
	for _, s := range sessions {
		count, err := rt.transcript.TurnCount(ctx, s.ID)
		if err != nil {
			return err
		}
		doc := s.Document
		if doc == "" {
			doc = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), count, s.Resets, doc)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, configPath, prefix string, noColor bool) error {
	rt, err := openHistory(configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	sess, err := rt.transcript.FindSession(ctx, prefix)
	if err != nil {
		return err
	}
	turns, err := rt.transcript.LoadTurns(ctx, sess.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r := newRenderer(out, noColor)
	fmt.Fprintf(out, "Session %s (started %s, backend %s)\n",
		sess.ID, sess.CreatedAt.Local().Format("2006-01-02 15:04"), sess.Backend)

	epoch := 0
	for _, t := range turns {
		if t.Epoch != epoch {
			epoch = t.Epoch
			r.noticef("--- reset #%d ---", epoch)
		}
		content := t.Content
		if t.RolledBack {
			content += " [rolled back]"
		}
		r.turn(conversation.Turn{Role: conversation.Role(t.Role), Content: content, Sequence: t.Sequence})
	}
	return nil
}
