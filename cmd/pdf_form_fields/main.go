package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-form-filler/internal/logging"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	verbose      bool
	format       string
	maxFileSize  int64
	synonymsFile string
}

func (o *globalOptions) logger(cmd *cobra.Command) *logging.Logger {
	if !o.verbose {
		return logging.Nop()
	}
	return logging.New("debug", cmd.ErrOrStderr())
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pdf_form_fields",
		Short: "Inspect and fill PDF forms from the command line",
		Long: `Inspect the interactive fields of a PDF form, preview how personal data
would be matched to them, and write a filled copy.

Personal data is plain text with one "Label: Value" entry per line.

Quick Start:
  pdf_form_fields fields application.pdf                 # List fields
  pdf_form_fields match application.pdf --data me.txt    # Dry run
  pdf_form_fields fill application.pdf --data me.txt     # Write application_filled.pdf`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	root.PersistentFlags().Int64Var(&opts.maxFileSize, "maxfilesize", 100*1024*1024, "Maximum PDF size in bytes")
	root.PersistentFlags().StringVar(&opts.synonymsFile, "synonyms", "", "YAML file with synonym groups, stopwords and fuzzy threshold")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newFieldsCmd(opts), newMatchCmd(opts), newFillCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
