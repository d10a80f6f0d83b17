package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) devicesCmd() *cobra.Command {
	var withChannels bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices of the configured entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := a.client.ListDevices(cmd.Context(), a.cfg.EntryID)
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(a.out, "No devices found.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tNAME\tMODEL\tTYPE\tSTATUS")
			fmt.Fprintln(w, "-------\t----\t-----\t----\t------")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Address, d.Name, d.Model, d.Type, status(d.Maintenance.Unreachable, d.Maintenance.LowBattery, d.Maintenance.ConfigPending))
				if !withChannels {
					continue
				}
				for _, ch := range d.Channels {
					fmt.Fprintf(w, "  %s\t%s\t\t\t%s\n", ch.Address, ch.Type, strings.Join(ch.ParamsetKeys, ","))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&withChannels, "channels", false, "Also list channels and their paramsets")
	return cmd
}

func status(unreachable, lowBattery, configPending bool) string {
	var flags []string
	if unreachable {
		flags = append(flags, "unreachable")
	}
	if lowBattery {
		flags = append(flags, "low battery")
	}
	if configPending {
		flags = append(flags, "config pending")
	}
	if len(flags) == 0 {
		return "ok"
	}
	return strings.Join(flags, ", ")
}
