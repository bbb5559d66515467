package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/mbolshakov/gotrial/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintExperiments outputs experiments in the specified format
func PrintExperiments(experiments []store.Experiment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(experiments)
	case FormatYAML:
		return printYAML(experiments)
	case FormatTable:
		return printTable(experiments)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintExperiment outputs a single experiment in the specified format
func PrintExperiment(exp *store.Experiment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(exp)
	case FormatYAML:
		return printYAML(exp)
	case FormatTable:
		return printTable([]store.Experiment{*exp})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if experiments, ok := data.([]store.Experiment); ok {
		return encoder.Encode(map[string][]store.Experiment{"experiments": experiments})
	}
	return encoder.Encode(data)
}

func printYAML(data interface{}) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printTable(experiments []store.Experiment) error {
	table := tablewriter.NewWriter(os.Stdout)

	table.Header("ID", "Feature", "Name", "Type", "Status", "Variations", "Exposures", "Conversions", "Updated At")

	for _, exp := range experiments {
		var exposures, conversions int64
		for _, v := range exp.Variations {
			exposures += v.Exposures
			conversions += v.Conversions
		}

		id := exp.ID
		if len(id) > 12 {
			id = id[:12] + "..."
		}

		table.Append(
			id,
			exp.Feature,
			exp.Name,
			exp.Type,
			exp.Status,
			fmt.Sprintf("%d", len(exp.Variations)),
			fmt.Sprintf("%d", exposures),
			fmt.Sprintf("%d", conversions),
			exp.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}
