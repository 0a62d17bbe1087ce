package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kmc/internal/harness"
)

// FileValidation is the validation outcome for one scenario file.
type FileValidation struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Check scenario files against the scenario schema and the kernel
command registry. Nothing is executed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			_ = formatter.Error("E_FILE_NOT_FOUND", err.Error(), nil)
			return WrapExitError(ExitCommandError, "cannot read scenario", err)
		}
		fv := validateFile(file)
		formatter.VerboseLog("validated %s: valid=%t", file, fv.Valid)
		result.Files = append(result.Files, fv)
		result.Valid = result.Valid && fv.Valid
	}

	invalid := 0
	for _, fv := range result.Files {
		if !fv.Valid {
			invalid++
		}
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_INVALID_SCENARIO",
				Message: fmt.Sprintf("%d invalid scenario file(s)", invalid),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s\n", fv.File)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", fv.File)
			for _, msg := range fv.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", msg)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid scenario file(s)", invalid))
	}
	return nil
}

// validateFile loads one scenario. Schema violations are reported one per
// message.
func validateFile(file string) FileValidation {
	_, err := harness.LoadScenario(file)
	if err == nil {
		return FileValidation{File: file, Valid: true}
	}
	var schemaErr *harness.SchemaError
	if errors.As(err, &schemaErr) {
		return FileValidation{File: file, Errors: schemaErr.Messages}
	}
	return FileValidation{File: file, Errors: []string{err.Error()}}
}
