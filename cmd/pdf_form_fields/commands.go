package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-form-filler/internal/dispatch"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	filledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func newFieldsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <pdf_file>",
		Short: "List the interactive form fields of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDispatcher(cmd, opts)
			if err != nil {
				return err
			}
			data, err := readDocument(opts, args[0])
			if err != nil {
				return err
			}
			fields, err := d.Inspect(cmd.Context(), data)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), fields)
			}
			printFields(cmd.OutOrStdout(), args[0], fields)
			return nil
		},
	}
}

func newMatchCmd(opts *globalOptions) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "match <pdf_file>",
		Short: "Preview how personal data maps to a form's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDispatcher(cmd, opts)
			if err != nil {
				return err
			}
			doc, err := readDocument(opts, args[0])
			if err != nil {
				return err
			}
			text, err := readData(cmd, dataPath)
			if err != nil {
				return err
			}
			bindings, err := d.Preview(cmd.Context(), doc, text)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), struct {
					Bindings []match.Binding `json:"bindings"`
					Summary  match.Summary   `json:"summary"`
				}{bindings, match.Summarize(bindings)})
			}
			printBindings(cmd.OutOrStdout(), bindings)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", `Personal data file ("-" reads stdin)`)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newFillCmd(opts *globalOptions) *cobra.Command {
	var (
		dataPath   string
		outPath    string
		overwrite  bool
		autoDate   bool
		dateFormat string
	)

	cmd := &cobra.Command{
		Use:   "fill <pdf_file>",
		Short: "Write a filled copy of a PDF form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			d, err := newDispatcher(cmd, opts, func(o *dispatch.Options) {
				o.AutoDate = autoDate
				o.DateFormat = dateFormat
			})
			if err != nil {
				return err
			}
			doc, err := readDocument(opts, source)
			if err != nil {
				return err
			}
			text, err := readData(cmd, dataPath)
			if err != nil {
				return err
			}

			result, err := d.HandleFill(cmd.Context(), dispatch.FillRequest{
				PDF:      doc,
				Text:     text,
				Filename: filepath.Base(source),
			})
			if err != nil {
				return err
			}
			// nothing emails from the CLI
			d.Store().Delete(result.SessionID)

			target := outPath
			if target == "" {
				target = filepath.Join(filepath.Dir(source), result.Filename)
			}
			if err := writeOutput(source, target, result.Bytes, overwrite); err != nil {
				return err
			}

			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), struct {
					Output string `json:"output"`
					*dispatch.FillResult
				}{target, result})
			}
			printBindings(cmd.OutOrStdout(), result.Bindings)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s %s\n", headerStyle.Render("Saved:"), target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", `Personal data file ("-" reads stdin)`)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default <name>_filled.pdf next to the source)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing output file")
	cmd.Flags().BoolVar(&autoDate, "auto-date", false, `Fill a field labelled "date" with today's date when the data has none`)
	cmd.Flags().StringVar(&dateFormat, "date-format", dispatch.DefaultDateFormat, "Go time layout for the automatic date")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// newDispatcher builds a dispatcher for one CLI invocation
func newDispatcher(cmd *cobra.Command, opts *globalOptions, extra ...func(*dispatch.Options)) (*dispatch.Dispatcher, error) {
	if opts.format != "text" && opts.format != "json" {
		return nil, fmt.Errorf("unsupported format %q (use text or json)", opts.format)
	}

	policy := match.DefaultPolicy()
	if opts.synonymsFile != "" {
		p, err := match.LoadPolicy(opts.synonymsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load synonyms: %w", err)
		}
		policy = p
	}

	logger := opts.logger(cmd)
	o := dispatch.Options{
		Validator: pdf.NewValidator(opts.maxFileSize),
		Matcher:   match.NewMatcher(policy),
		Store:     session.NewStore(session.Config{MaxEntries: 1, Logger: logger}),
		Logger:    logger,
	}
	for _, fn := range extra {
		fn(&o)
	}
	return dispatch.New(o), nil
}

func readDocument(opts *globalOptions, path string) ([]byte, error) {
	return pdf.NewValidator(opts.maxFileSize).ReadFile(path)
}

func readData(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read data from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read data file: %w", err)
	}
	return string(data), nil
}

func writeOutput(source, target string, data []byte, overwrite bool) error {
	src, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("refusing to overwrite the source document %s", source)
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("%s already exists (use --overwrite to replace it)", target)
		}
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFields(w io.Writer, path string, fields []extraction.FormField) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Form fields in"), filepath.Base(path))
	if len(fields) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no interactive fields"))
		return
	}

	for i, f := range fields {
		kind := string(f.Kind)
		if f.Radio {
			kind = "radio"
		}
		fmt.Fprintf(w, "%3d. %s %s", i+1, nameStyle.Render(f.Name), kindStyle.Render("("+kind+")"))
		if f.AltName != "" {
			fmt.Fprintf(w, " %s", dimStyle.Render(fmt.Sprintf("%q", f.AltName)))
		}
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.ReadOnly {
			flags = append(flags, "read-only")
		}
		if len(flags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(flags, ", "))
		}
		fmt.Fprintln(w)
		if len(f.Choices) > 0 {
			fmt.Fprintf(w, "     options: %s\n", strings.Join(f.Choices, ", "))
		}
		if f.Value != "" {
			fmt.Fprintf(w, "     value: %s\n", f.Value)
		}
	}
	fmt.Fprintf(w, "\n%d field(s)\n", len(fields))
}

func printBindings(w io.Writer, bindings []match.Binding) {
	for _, b := range bindings {
		if !b.HasValue() {
			fmt.Fprintf(w, "%s %s %s\n", skippedStyle.Render("✗"), b.Field.Name, dimStyle.Render("("+b.Reason+")"))
			continue
		}
		value := b.Value
		if b.Field.Kind == extraction.FieldKindCheckbox {
			value = "unchecked"
			if b.Checked {
				value = "checked"
			}
		}
		note := fmt.Sprintf("[%s from %q]", b.Confidence, b.MatchedKey)
		if b.Reason != "" {
			note += " (" + b.Reason + ")"
		}
		fmt.Fprintf(w, "%s %s = %s %s\n", filledStyle.Render("✓"), b.Field.Name, value, dimStyle.Render(note))
	}

	s := match.Summarize(bindings)
	fmt.Fprintf(w, "\n%s %d of %d fields (exact %d, synonym %d, fuzzy %d)\n",
		headerStyle.Render("Matched"), s.Filled, s.Total, s.Exact, s.Synonym, s.Fuzzy)
}
