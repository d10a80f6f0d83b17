package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/form"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

func (a *app) linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links <device>",
		Short: "List the direct links of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			links, err := a.client.ListDeviceLinks(cmd.Context(), rpc.DeviceLinksParams{
				EntryID:       a.cfg.EntryID,
				InterfaceID:   a.cfg.InterfaceID,
				DeviceAddress: args[0],
			})
			if err != nil {
				return fmt.Errorf("failed to list links: %w", err)
			}
			if len(links) == 0 {
				fmt.Fprintln(a.out, "No links found.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DIRECTION\tSENDER\tRECEIVER\tNAME")
			fmt.Fprintln(w, "---------\t------\t--------\t----")
			for _, l := range links {
				fmt.Fprintf(w, "%s\t%s (%s)\t%s (%s)\t%s\n",
					l.Direction, l.SenderAddress, l.SenderName, l.ReceiverAddress, l.ReceiverName, l.Name)
			}
			return w.Flush()
		},
	}
}

func (a *app) linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Edit, add and remove direct links",
	}
	cmd.AddCommand(
		a.linkShowCmd(),
		a.linkSetCmd(),
		a.linkProfileCmd(),
		a.linkAddCmd(),
		a.linkRemoveCmd(),
		a.linkCandidatesCmd(),
	)
	return cmd
}

func (a *app) linkShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <sender> <receiver>",
		Short: "Show both paramsets of a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := editor.NewLinkController(a.client, a.cfg.Link(args[1], args[0]), a.options()...)
			if err := ctrl.Open(cmd.Context()); err != nil {
				return fmt.Errorf("failed to open link: %w", err)
			}
			defer ctrl.Close(cmd.Context())

			for i, side := range editor.Sides {
				snap := ctrl.Snapshot(side)
				if i > 0 {
					fmt.Fprintln(a.out)
				}
				fmt.Fprintf(a.out, "== %s %s ==\n", a.sideLabel(side), snap.Ref.ChannelAddress)
				f := form.Render(&snap.Schema.FormSchema, snap.ChangeSet(), snap.ValidationErrors, nil)
				if err := form.FprintGroups(a.out, f, ctrl.Groups(side), a.labels()); err != nil {
					return err
				}
				if len(snap.Schema.Profiles) == 0 {
					continue
				}
				fmt.Fprintln(a.out, "\nProfiles:")
				for _, p := range snap.Schema.Profiles {
					fmt.Fprintf(a.out, "  %-12s %s\n", p.ID, p.Name)
				}
			}
			return nil
		},
	}
}

func (a *app) linkSetCmd() *cobra.Command {
	var sideName string
	cmd := &cobra.Command{
		Use:   "set <sender> <receiver> ID=VALUE...",
		Short: "Change link parameters of one endpoint and save them",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, err := parseSide(sideName)
			if err != nil {
				return err
			}
			assignments, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return a.editLink(cmd.Context(), args[0], args[1], func(ctrl *editor.LinkController) error {
				var emitErr error
				snap := ctrl.Snapshot(side)
				f := form.Render(&snap.Schema.FormSchema, snap.ChangeSet(), snap.ValidationErrors, func(ev form.ValueChanged) {
					if err := ctrl.SetValue(side, ev.ParameterID, ev.Value); err != nil && emitErr == nil {
						emitErr = err
					}
				})
				for _, as := range assignments {
					c, ok := f.Control(as.id)
					if !ok {
						return fmt.Errorf("unknown %s parameter %s", side, as.id)
					}
					if err := c.Input(as.text); err != nil {
						return err
					}
				}
				return emitErr
			})
		},
	}
	cmd.Flags().StringVarP(&sideName, "side", "s", editor.Receiver.String(), "Endpoint to edit: receiver or sender")
	return cmd
}

func (a *app) linkProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <sender> <receiver> <profile>",
		Short: "Apply a receiver profile to a link and save it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editLink(cmd.Context(), args[0], args[1], func(ctrl *editor.LinkController) error {
				_, err := ctrl.SelectProfile(args[2])
				return err
			})
		},
	}
}

func (a *app) linkAddCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "add <sender> <receiver>",
		Short: "Create a direct link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.client.AddLink(cmd.Context(), rpc.AddLinkParams{
				EntryID:         a.cfg.EntryID,
				InterfaceID:     a.cfg.InterfaceID,
				SenderAddress:   args[0],
				ReceiverAddress: args[1],
				Name:            name,
				Description:     description,
			})
			if err != nil {
				return fmt.Errorf("failed to add link: %w", err)
			}
			fmt.Fprintf(a.out, "Linked %s -> %s.\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Link name")
	cmd.Flags().StringVar(&description, "description", "", "Link description")
	return cmd
}

func (a *app) linkRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <sender> <receiver>",
		Short: "Delete a direct link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ok := a.confirmer().Confirm(ctx, editor.ConfirmRequest{
				Title:        "Remove link?",
				Body:         fmt.Sprintf("%s -> %s and both of its paramsets will be deleted.", args[0], args[1]),
				ConfirmLabel: "Remove",
				Destructive:  true,
			})
			if !ok {
				return errNotSaved
			}
			_, err := a.client.RemoveLink(ctx, rpc.RemoveLinkParams{
				EntryID:         a.cfg.EntryID,
				InterfaceID:     a.cfg.InterfaceID,
				SenderAddress:   args[0],
				ReceiverAddress: args[1],
			})
			if err != nil {
				return fmt.Errorf("failed to remove link: %w", err)
			}
			fmt.Fprintf(a.out, "Removed %s -> %s.\n", args[0], args[1])
			return nil
		},
	}
}

func (a *app) linkCandidatesCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "candidates <channel>",
		Short: "List channels a channel can be linked with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := a.client.GetLinkableChannels(cmd.Context(), rpc.LinkableChannelsParams{
				EntryID:        a.cfg.EntryID,
				InterfaceID:    a.cfg.InterfaceID,
				ChannelAddress: args[0],
				Role:           role,
			})
			if err != nil {
				return fmt.Errorf("failed to list candidates: %w", err)
			}
			if len(channels) == 0 {
				fmt.Fprintln(a.out, "No linkable channels.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tDEVICE\tTYPE\tROLE")
			fmt.Fprintln(w, "-------\t------\t----\t----")
			for _, ch := range channels {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.Address, ch.DeviceName, ch.ChannelType, ch.Role)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Role of the given channel: sender or receiver")
	return cmd
}

// editLink opens both endpoints, lets stage make changes and saves them.
func (a *app) editLink(ctx context.Context, sender, receiver string, stage func(*editor.LinkController) error) error {
	ctrl := editor.NewLinkController(a.client, a.cfg.Link(receiver, sender), a.options()...)
	if err := ctrl.Open(ctx); err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}
	defer func() {
		if ctrl.IsDirty() {
			ctrl.Discard()
		}
		ctrl.Close(ctx)
	}()

	if err := stage(ctrl); err != nil {
		return err
	}
	if !ctrl.IsDirty() {
		fmt.Fprintln(a.out, "Nothing to save.")
		return nil
	}

	res, err := ctrl.Save(ctx)
	switch res.Outcome {
	case editor.SaveApplied:
		fmt.Fprintf(a.out, "Saved link %s -> %s.\n", sender, receiver)
		return err
	case editor.SaveCancelled:
		return errNotSaved
	case editor.SaveRejected, editor.SaveFailed:
		for _, side := range editor.Sides {
			if errs := res.ValidationErrors[side]; len(errs) > 0 {
				fmt.Fprintf(a.errOut, "%s:\n", a.sideLabel(side))
				printValidation(a, errs)
			}
		}
		if err != nil {
			return err
		}
		return errNotSaved
	}
	return err
}

func parseSide(name string) (editor.Side, error) {
	for _, side := range editor.Sides {
		if side.String() == name {
			return side, nil
		}
	}
	return 0, fmt.Errorf("unknown side %q, want receiver or sender", name)
}

func (a *app) sideLabel(side editor.Side) string {
	if side == editor.Sender {
		return a.tr.T("link.sender", nil)
	}
	return a.tr.T("link.receiver", nil)
}
