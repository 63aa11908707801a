package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/document"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/parser"
	"github.com/djsydney04/wrapshot/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		documentID string
		title      string
		pageCount  int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Break down a script file and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg config.Config, store *jobs.Store) error {
				doc, err := parseScript(args[0], cfg)
				if err != nil {
					return err
				}
				completer, err := ctx.newCompleter(cfg)
				if err != nil {
					return err
				}

				log := ctx.logger(cmd.ErrOrStderr())
				ext := extract.NewExtractor(completer, log, extract.Options{
					MaxTokens:   cfg.ExtractMaxTokens,
					Temperature: cfg.ExtractTemperature,
				})
				orch := pipeline.NewOrchestrator(cfg, store, ext, log)

				req := pipeline.Request{
					DocumentID: strings.TrimSpace(documentID),
					Title:      doc.Title,
					Text:       doc.Text,
					PageCount:  doc.PageCount,
				}
				if req.DocumentID == "" {
					req.DocumentID = document.IDFromText(doc.Text)
				}
				if t := strings.TrimSpace(title); t != "" {
					req.Title = t
				}
				if pageCount > 0 {
					req.PageCount = pageCount
				}

				job, err := orch.Process(cmd.Context(), req)
				if err != nil {
					return err
				}

				var bd *jobs.Breakdown
				if job.Status == jobs.StatusComplete {
					if bd, err = store.Breakdown(cmd.Context(), job.DocumentID); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if asJSON {
					payload := map[string]any{"job": job}
					if bd != nil {
						payload["result"] = bd.Result
					}
					if err := writeJSON(cmd, payload); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(out, renderJob(job, shouldColorize(out)))
					if bd != nil {
						fmt.Fprintln(out)
						fmt.Fprintln(out, renderScenesTable(bd.Result.Scenes))
					}
				}

				if job.Status != jobs.StatusComplete {
					return fmt.Errorf("breakdown %s: %s", strings.ToLower(string(job.Status)), job.ErrorMessage)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "document-id", "", "Document id (defaults to a hash of the text)")
	cmd.Flags().StringVar(&title, "title", "", "Script title passed to the model")
	cmd.Flags().IntVar(&pageCount, "pages", 0, "Page count when the file format has none")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func parseScript(path string, cfg config.Config) (*document.Document, error) {
	p, err := parser.ForFile(path, parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext})
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%s exceeds max size (%d bytes)", path, cfg.MaxUploadBytes)
	}

	doc, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
