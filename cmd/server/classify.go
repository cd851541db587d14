package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-disease-api/internal/classifier"
	"github.com/Brownie44l1/plant-disease-api/internal/diagnosis"
	"github.com/Brownie44l1/plant-disease-api/internal/treatment"
)

type classifyResult struct {
	File       string            `json:"file"`
	Prediction string            `json:"prediction,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Advice     *treatment.Advice `json:"treatment_info,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Diagnose leaf images from disk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			advisor, err := loadAdvisor(cfg)
			if err != nil {
				return err
			}
			adapter, err := openClassifier(cfg, advisor.Catalog().Labels())
			if err != nil {
				return err
			}
			defer adapter.Close()
			if !adapter.Loaded() {
				if cause := adapter.LoadError(); cause != nil {
					return fmt.Errorf("%w: %v", classifier.ErrModelUnavailable, cause)
				}
				return classifier.ErrModelUnavailable
			}

			svc := diagnosis.New(adapter, advisor, nil)
			results, failed := classifyFiles(cmd, svc, args)

			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderClassifyTable(results))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func classifyFiles(cmd *cobra.Command, svc *diagnosis.Service, paths []string) ([]classifyResult, int) {
	results := make([]classifyResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		res := classifyResult{File: path}
		d, err := classifyFile(cmd, svc, path)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			advice := d.Advice
			res.Prediction = d.Prediction.Label
			res.Confidence = d.Prediction.Confidence
			res.Advice = &advice
		}
		results = append(results, res)
	}
	return results, failed
}

func classifyFile(cmd *cobra.Command, svc *diagnosis.Service, path string) (diagnosis.Diagnosis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return diagnosis.Diagnosis{}, err
	}
	return svc.Diagnose(cmd.Context(), data, "")
}

func renderClassifyTable(results []classifyResult) string {
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			rows = append(rows, table.Row{filepath.Base(r.File), "error", "", "", r.Error})
			continue
		}
		rows = append(rows, table.Row{
			filepath.Base(r.File),
			r.Prediction,
			fmt.Sprintf("%.1f%%", r.Confidence*100),
			string(r.Advice.Severity),
			r.Advice.SeverityDescription,
		})
	}
	return renderTable(table.Row{"File", "Prediction", "Confidence", "Severity", "Description"}, rows, 3)
}
