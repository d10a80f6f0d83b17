package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/form"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

var errNotSaved = errors.New("changes were not saved")

func (a *app) showCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "show <channel>",
		Short: "Show the parameters of a channel paramset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := a.client.GetFormSchema(cmd.Context(), a.cfg.Channel(args[0], key))
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", args[0], err)
			}
			fmt.Fprintf(a.out, "%s %s (%s)  %d parameters, %d writable\n\n",
				schema.ChannelAddress, schema.ParamsetKey, schema.ChannelType, schema.TotalParameters, schema.WritableParameters)
			return form.Fprint(a.out, form.Render(schema, nil, nil, nil), a.labels())
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", paramset.KeyMaster, "Paramset key: MASTER or VALUES")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set <channel> ID=VALUE...",
		Short: "Change parameters and save them",
		Long: `Stages each ID=VALUE assignment in an edit session, shows the
resulting changes and saves them after confirmation.

Values are typed the way they are displayed: on/off for toggles, an
option label or index for enums, percent parameters scaled by 100.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return a.edit(cmd.Context(), args[0], key, func(ctrl *editor.Controller) error {
				return a.apply(cmd.Context(), ctrl, assignments)
			})
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", paramset.KeyMaster, "Paramset key: MASTER or VALUES")
	return cmd
}

func (a *app) resetCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "reset <channel>",
		Short: "Reset writable parameters to their defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(cmd.Context(), args[0], key, func(ctrl *editor.Controller) error {
				if n := ctrl.ResetToDefaults(); n == 0 {
					fmt.Fprintln(a.out, "All parameters are at their defaults.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", paramset.KeyMaster, "Paramset key: MASTER or VALUES")
	return cmd
}

type assignment struct {
	id   string
	text string
}

func parseAssignments(args []string) ([]assignment, error) {
	out := make([]assignment, 0, len(args))
	for _, arg := range args {
		id, text, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid assignment %q, want ID=VALUE", arg)
		}
		out = append(out, assignment{id: id, text: text})
	}
	return out, nil
}

// apply types every assignment into the rendered form. The form reports
// each change back to the controller.
func (a *app) apply(ctx context.Context, ctrl *editor.Controller, assignments []assignment) error {
	var emitErr error
	snap := ctrl.Snapshot()
	f := form.Render(snap.Schema, snap.ChangeSet(), snap.ValidationErrors, func(ev form.ValueChanged) {
		if err := ctrl.SetValue(ctx, ev.ParameterID, ev.Value); err != nil && emitErr == nil {
			emitErr = err
		}
	})
	for _, as := range assignments {
		c, ok := f.Control(as.id)
		if !ok {
			return fmt.Errorf("unknown parameter %s", as.id)
		}
		if err := c.Input(as.text); err != nil {
			return err
		}
		if emitErr != nil {
			return emitErr
		}
	}
	ctrl.Wait()
	return nil
}

// edit opens an editor on the channel, lets stage make changes and then
// saves them. Unsaved changes are discarded before the editor is closed.
func (a *app) edit(ctx context.Context, channel, key string, stage func(*editor.Controller) error) error {
	ctrl := editor.NewController(a.client, a.cfg.Channel(channel, key), a.options()...)
	if err := ctrl.Open(ctx); err != nil {
		return fmt.Errorf("failed to open %s: %w", channel, err)
	}
	defer func() {
		if ctrl.IsDirty() {
			_ = ctrl.Discard(ctx)
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
		fmt.Fprintf(a.out, "Saved %d change(s) to %s.\n", res.ChangesApplied, channel)
		return err
	case editor.SaveCancelled:
		return errNotSaved
	case editor.SaveRejected:
		printValidation(a, res.ValidationErrors)
		return errNotSaved
	case editor.SaveSkipped:
		fmt.Fprintln(a.out, "Nothing to save.")
		return nil
	}
	return err
}

func printValidation(a *app, errs paramset.ValidationErrors) {
	for _, id := range slices.Sorted(maps.Keys(errs)) {
		fmt.Fprintf(a.errOut, "  %s: %s\n", id, errs[id])
	}
}
