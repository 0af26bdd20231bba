package cliutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/wandb/simplejsonext"
	"gopkg.in/yaml.v3"

	"github.com/wandb/runlens/internal/runmodel"
)

// AddOutputFlags registers the flags read by HandleOutput.
func AddOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("template", "", "Template for output format. Accepts Go template format (e.g. --template='{{.runId}}')")
	cmd.Flags().String("format", "json", "Output format. Accepts 'json' or 'yaml'")
}

// HandleOutput writes value according to the template or format flag.
//
// The value is first converted to plain JSON data, so templates refer to
// fields by their JSON names. Non-finite numbers are written as strings.
func HandleOutput(cmd *cobra.Command, value any) error {
	templateFlag, _ := cmd.Flags().GetString("template")
	formatFlag, _ := cmd.Flags().GetString("format")

	result, err := toPlain(value)
	if err != nil {
		return fmt.Errorf("failed to convert output: %w", err)
	}

	if templateFlag != "" {
		tmpl, err := template.New("output").Parse(templateFlag)
		if err != nil {
			return fmt.Errorf("failed to parse template: %w", err)
		}

		if err := tmpl.Execute(cmd.OutOrStdout(), result); err != nil {
			return fmt.Errorf("failed to execute template: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	}

	var output []byte

	switch formatFlag {
	case "yaml":
		output, err = yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		output = bytes.TrimSuffix(output, []byte("\n"))
	case "json", "":
		output, err = json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal to JSON: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", formatFlag)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

// toPlain round-trips value through JSON.
func toPlain(value any) (any, error) {
	b, err := json.Marshal(simplejsonext.WalkDeNaN(runmodel.CloneValue(value)))
	if err != nil {
		return nil, err
	}
	return simplejsonext.Unmarshal(b)
}
