package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/form-digitizer/internal/entity"
	"github.com/joseph-ayodele/form-digitizer/internal/server"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage saved form records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete [record-id]",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsDelete,
}

var recordsExportCmd = &cobra.Command{
	Use:   "export [record-id]",
	Short: "Export a record as JSON or XLSX",
	Long: `Writes one record to --out (stdout when empty), or every record of the
owner as one workbook with --all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecordsExport,
}

var (
	recordsOwner  string
	exportFormat  string
	exportOut     string
	exportAllRecs bool
)

func init() {
	recordsCmd.PersistentFlags().StringVar(&recordsOwner, "owner", "", "owner id (required)")
	_ = recordsCmd.MarkPersistentFlagRequired("owner")

	recordsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", server.FormatJSON, "json or xlsx")
	recordsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file")
	recordsExportCmd.Flags().BoolVar(&exportAllRecs, "all", false, "export every record of the owner as XLSX")

	recordsCmd.AddCommand(recordsListCmd, recordsDeleteCmd, recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}

func runRecordsList(cmd *cobra.Command, _ []string) error {
	a, err := load(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	views, err := a.Records.List(cmd.Context(), recordsOwner)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(views) == 0 {
		cmd.Printf("No records found for owner: %s\n", recordsOwner)
		return nil
	}
	for _, fv := range views {
		cmd.Printf("%s  %-14s %3d/%-3d  %s  %s\n",
			fv.ID, fv.TemplateName, fv.Fields.Filled(), countFields(fv.Fields.Sections),
			fv.CreatedAt.Local().Format("2006-01-02 15:04:05"), fv.SourceFilename)
	}
	cmd.Printf("\nTotal: %d records\n", len(views))
	return nil
}

func runRecordsDelete(cmd *cobra.Command, args []string) error {
	a, err := load(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Records.Delete(cmd.Context(), recordsOwner, args[0]); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	if !exportAllRecs && len(args) == 0 {
		return errors.New("a record id or --all is required")
	}
	a, err := load(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := server.NewService(a.Processor, a.Records, a.Exporter, a.Logger)
	var data []byte
	if exportAllRecs {
		data, err = svc.ExportRecords(cmd.Context(), recordsOwner)
	} else {
		data, _, err = svc.ExportRecord(cmd.Context(), recordsOwner, args[0], exportFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}

	if exportOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	cmd.Printf("Wrote %s (%d bytes)\n", exportOut, len(data))
	return nil
}

func countFields(sections []entity.SectionValues) int {
	n := 0
	for _, s := range sections {
		n += len(s.Fields)
	}
	return n
}
