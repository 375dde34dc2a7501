package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var outputFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "Output format: text, json or yaml",
	Value:   outputText,
	Validator: func(s string) error {
		switch s {
		case outputText, outputJSON, outputYAML:
			return nil
		}
		return fmt.Errorf("unknown output format %q", s)
	},
}

// writeStructured encodes v as json or yaml. It returns false for text output
// so the caller renders its own table.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		// Round-trip through JSON so YAML keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}
