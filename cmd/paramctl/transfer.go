package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func (a *app) exportCmd() *cobra.Command {
	var key, format, output string
	cmd := &cobra.Command{
		Use:   "export <channel>",
		Short: "Export the saved paramset of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.client.ExportParamset(cmd.Context(), a.cfg.Channel(args[0], key))
			if err != nil {
				return fmt.Errorf("failed to export %s: %w", args[0], err)
			}

			var out []byte
			switch format {
			case formatJSON:
				out = []byte(data)
				if !strings.HasSuffix(data, "\n") {
					out = append(out, '\n')
				}
			case formatYAML:
				if out, err = jsonToYAML([]byte(data)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q, want json or yaml", format)
			}

			if output == "" || output == "-" {
				_, err = a.out.Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(a.errOut, "Exported %s to %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", paramset.KeyMaster, "Paramset key")
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "import <channel> <file>",
		Short: "Import a previously exported paramset",
		Long: `Writes an exported paramset document back to a channel. The file may
be JSON or YAML. Parameters the channel does not have are ignored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			data, err := documentJSON(args[1], raw)
			if err != nil {
				return err
			}

			ctrl := editor.NewController(a.client, a.cfg.Channel(args[0], key), a.options()...)
			if err := ctrl.Open(ctx); err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer ctrl.Close(ctx)

			verrs, err := ctrl.Import(ctx, string(data))
			if err != nil {
				return err
			}
			if len(verrs) > 0 {
				printValidation(a, verrs)
				return errNotSaved
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", paramset.KeyMaster, "Paramset key")
	return cmd
}

func jsonToYAML(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed export: %w", err)
	}
	return yaml.Marshal(doc)
}

// documentJSON returns the import document as JSON, converting YAML files.
func documentJSON(name string, raw []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
	default:
		if json.Valid(raw) {
			return raw, nil
		}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return json.Marshal(doc)
}
