package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bookvault/bookvault/internal/models"
)

// cliUserAgent marks audit entries written by maintenance commands.
const cliUserAgent = "bookvault-cli"

type bookImporter interface {
	ImportBooksFromCSV(ctx context.Context, csvText string, opts models.BatchOptions) (*models.BatchResult, error)
}

// cliActor attributes CLI changes to userID when it is positive.
func cliActor(userID int64) models.Actor {
	ua := cliUserAgent
	actor := models.Actor{UserAgent: &ua}
	if userID > 0 {
		actor.UserID = &userID
	}

	return actor
}

func newImportCmd() *cobra.Command {
	var (
		opts   = models.DefaultBatchOptions()
		userID int64
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import books from a CSV file",
		Long: `Import books from a CSV file with the header
title,isbn,author,publisher,genre,price,stock,publication_date (aliases accepted).
Use - to read from stdin. By default the whole import is rolled back when any
row fails; --continue-on-error commits the valid rows instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			csvText, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			stopAudit := a.startAudit(ctx)
			defer stopAudit()

			opts.Actor = cliActor(userID)

			return runImport(ctx, a.batch, csvText, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.ContinueOnError, "continue-on-error", false, "Commit valid rows and report failed ones")
	cmd.Flags().BoolVar(&opts.ValidateOnly, "validate-only", false, "Validate rows without writing")
	cmd.Flags().BoolVar(&opts.UpdateExisting, "update-existing", false, "Update books whose ISBN already exists")
	cmd.Flags().BoolVar(&opts.AuditChanges, "audit", true, "Write an audit entry per imported book")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "Rows per chunk (default BATCH_CHUNK_SIZE)")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "User the import is attributed to in the audit log")

	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // operator-supplied path.
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return string(data), nil
}

func runImport(ctx context.Context, svc bookImporter, csvText string, opts models.BatchOptions) error {
	result, err := svc.ImportBooksFromCSV(ctx, csvText, opts)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	switch flagFmt {
	case "table":
		rows := make([][]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			rows = append(rows, []string{strconv.Itoa(e.Row), e.Message})
		}
		formatTable([]string{"ROW", "ERROR"}, rows)
	default:
		output(result, fmt.Sprintf("%d/%d", result.Successful, result.TotalProcessed))
	}

	if result.RolledBack {
		return fmt.Errorf("import rolled back: %d of %d rows failed", result.Failed, result.TotalProcessed)
	}

	return nil
}
