package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subrender/internal/service"
	"github.com/MimeLyc/subrender/internal/translator"
	"github.com/MimeLyc/subrender/pkg/file"
)

func newTranslateCommand(opts *rootOptions) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Translate a local SRT or VTT file",
		Long: "Translate a local caption file with the configured translator. The result is printed\n" +
			"to stdout, or written next to the input as NAME.<target>.<ext> with --write.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			dialect, err := service.DialectForFilename(path)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			tr := translator.New(translatorConfig(cfg))
			captions := service.NewCaptionService(nil, tr)
			doc, err := captions.TranslateDocument(cmd.Context(), string(content), dialect)
			if err != nil {
				return err
			}

			report := doc.Report
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%d sent, %d applied)\n", path, report.Outcome, report.Sent, report.Applied)

			if !write {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc.Content)
				return err
			}
			out := file.WithLanguageTag(path, tr.Target().String())
			if err := os.WriteFile(out, []byte(doc.Content), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Write the result next to the input instead of printing it")
	return cmd
}
