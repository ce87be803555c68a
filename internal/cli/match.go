package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newMatchCmd() *cobra.Command {
	var (
		file     string
		tenantID string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve a single scraped listing against the listing store",
		Example: `  # Best match for one listing
  clover match --file listing.json --tenant acme

  # Every fuzzy candidate above the match threshold
  clover match --file listing.json --tenant acme --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var listing models.ScrapedListing
			if err := readJSONFile(file, &listing); err != nil {
				return err
			}
			if tenantID != "" {
				listing.TenantID = tenantID
			}
			if listing.TenantID == "" {
				return fmt.Errorf("tenant is required (--tenant or tenant_id in the listing)")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := appctx.SetTenantID(cmd.Context(), listing.TenantID)
			db, err := a.connectDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := a.newMatchingService(db)
			if err != nil {
				return err
			}

			if all {
				matches, err := svc.FindMatches(ctx, &listing)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), matches)
			}

			match, err := svc.FindBestMatch(ctx, &listing)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), match)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a scraped listing JSON document")
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant id (overrides tenant_id in the file)")
	cmd.Flags().BoolVar(&all, "all", false, "Return every ranked fuzzy candidate instead of the best match")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newDedupeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "dedupe",
		Short:   "Deduplicate a listing batch file against the listing store",
		Example: `  clover dedupe --file batch.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch kafka.ListingBatchMessage
			if err := readJSONFile(file, &batch); err != nil {
				return err
			}
			if batch.TenantID == "" {
				return fmt.Errorf("tenant_id is required in the batch file")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := appctx.SetTenantID(cmd.Context(), batch.TenantID)
			if batch.BatchID != "" {
				ctx = appctx.SetBatchID(ctx, batch.BatchID)
			}

			db, err := a.connectDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := a.newDedupService(db, nil)
			if err != nil {
				return err
			}

			options := batch.Options
			if options == nil {
				defaults := a.cfg.DetectionOptions()
				options = &defaults
			}

			result, err := svc.ProcessBatch(ctx, batch.TenantID, batch.Listings, options, func(processed, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "processed %d/%d\n", processed, total)
			})
			if result != nil {
				if writeErr := writeJSON(cmd.OutOrStdout(), result); writeErr != nil {
					return writeErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a listing batch JSON document")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
