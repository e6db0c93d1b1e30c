package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/situation"
	"github.com/ehr/ckdmbd/internal/platform/db"
	"github.com/ehr/ckdmbd/migrations"
)

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := db.NewMigrator(pool, migrationsFS(dir), cfg.DBSchema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir), cfg.DBSchema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), cfg.DBSchema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the situation catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Write all 66 situations derived from the classification tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := situation.NewService(situation.NewRepoPG(pool), db.NewTransactor(pool)).Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d situations.\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Compare the stored catalog with the classification tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			drift, err := situation.NewService(situation.NewRepoPG(pool), nil).Verify(ctx)
			if err != nil {
				return err
			}
			return reportDrift(cmd.OutOrStdout(), drift)
		},
	})

	return cmd
}

func reportDrift(w io.Writer, drift []situation.Drift) error {
	if len(drift) == 0 {
		fmt.Fprintln(w, "Catalog matches the classification tables.")
		return nil
	}
	for _, d := range drift {
		fmt.Fprintf(w, "situation %d:\n  expected: %s\n  stored:   %s\n", d.ID, d.Expected, d.Stored)
	}
	return fmt.Errorf("%d catalog row(s) differ; run `ckdmbd-server catalog seed`", len(drift))
}

func classifyCmd() *cobra.Command {
	var values classification.TestValues
	var previousPTH float64

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one set of lab values against the built-in catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("previous-pth") {
				values.PreviousPTH = &previousPTH
			}
			out, err := classifyValues(cmd.Context(), values)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&values.PTH, "pth", 0, "Current PTH (pg/mL)")
	f.Float64Var(&previousPTH, "previous-pth", 0, "Most recent prior PTH; defaults to the current value")
	f.Float64Var(&values.Calcium, "calcium", 0, "Total calcium (mg/dL)")
	f.Float64Var(&values.Albumin, "albumin", 0, "Albumin (g/dL)")
	f.Float64Var(&values.Phosphate, "phosphate", 0, "Phosphate (mg/dL)")
	f.BoolVar(&values.EchoPositive, "echo", false, "Echocardiogram shows vascular calcification")
	f.Float64Var(&values.LateralRadiography, "lateral-radiography", 0, "Lateral abdominal radiography score")
	for _, name := range []string{"pth", "calcium", "albumin", "phosphate"} {
		cmd.MarkFlagRequired(name) //nolint:errcheck
	}
	return cmd
}

// classifyValues resolves against the in-memory catalog, so no database is
// needed.
func classifyValues(ctx context.Context, values classification.TestValues) (*situation.Classification, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	svc := situation.NewService(situation.NewSeededMemoryRepo(), nil)
	return svc.Classify(ctx, values.WithCorrectedCalcium())
}
