package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

func newDiseasesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diseases",
		Short: "List the recognized plant conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			advisor, err := loadAdvisor(cfg)
			if err != nil {
				return err
			}

			records := advisor.Catalog().Records()
			if jsonOutput {
				return writeJSON(cmd, records)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDiseaseTable(records))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the catalog as JSON")
	return cmd
}

func renderDiseaseTable(records []treatment.DiseaseRecord) string {
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		healthy := ""
		if rec.Healthy {
			healthy = "yes"
		}
		rows = append(rows, table.Row{
			rec.Label,
			rec.DisplayName(),
			healthy,
			len(rec.Symptoms),
			len(rec.TreatmentSteps),
		})
	}
	return renderTable(table.Row{"Label", "Name", "Healthy", "Symptoms", "Steps"}, rows, 4, 5)
}
