package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/session"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		file       string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long:  "Sends one question to the backend, optionally uploading a PDF first, and prints the answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, configPath, file, strings.Join(args, " "), noColor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	cmd.Flags().StringVarP(&file, "file", "f", "", "PDF document to upload before asking")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func runAsk(cmd *cobra.Command, configPath, file, question string, noColor bool) error {
	rt, err := newRuntime(configPath, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	r := newRenderer(cmd.OutOrStdout(), noColor)
	ctx := context.Background()

	if file != "" {
		if err := uploadDocument(ctx, ctrl, file); err != nil {
			return err
		}
	}

	if !ctrl.Send(ctx, question) {
		return fmt.Errorf("question is empty")
	}
	st := ctrl.State()
	if st.Turn.Phase == session.TurnFailed {
		r.showError(st.Error)
		return fmt.Errorf("ask: %s", st.Turn.Reason)
	}
	fmt.Fprintln(cmd.OutOrStdout(), st.Turns[len(st.Turns)-1].Content)
	return nil
}

func newUploadCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a PDF document",
		Long:  "Uploads one PDF document to the backend for ingestion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	return cmd
}

func runUpload(cmd *cobra.Command, configPath, path string) error {
	rt, err := newRuntime(configPath, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctrl, err := rt.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := uploadDocument(context.Background(), ctrl, path); err != nil {
		return err
	}
	st := ctrl.State()
	fmt.Fprintln(cmd.OutOrStdout(), st.Turns[len(st.Turns)-1].Content)
	return nil
}

// uploadDocument submits the file at path and reports a failed upload as an
// error.
func uploadDocument(ctx context.Context, ctrl *session.Controller, path string) error {
	doc, err := session.OpenDocument(path)
	if err != nil {
		return err
	}
	ctrl.Submit(ctx, doc)
	st := ctrl.State()
	if st.Upload.Phase != session.UploadSucceeded {
		msg := st.Upload.Reason
		if st.Error != nil {
			msg = st.Error.Message
		}
		return fmt.Errorf("upload %s: %s", doc.Name, msg)
	}
	return nil
}
