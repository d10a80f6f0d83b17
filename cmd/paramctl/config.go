package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/clientcfg"
	"gopkg.in/yaml.v3"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the client configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := yaml.Marshal(a.cfg)
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "save",
			Short: "Write the effective configuration to the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path := a.configPath
				if path == "" {
					var err error
					if path, err = clientcfg.DefaultPath(); err != nil {
						return err
					}
				}
				if err := a.cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Configuration written to %s\n", path)
				return nil
			},
		},
	)
	return cmd
}
