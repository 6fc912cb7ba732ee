// ABOUTME: Subcommands of the attuned CLI
// ABOUTME: state, context, translate, infer, axes and health

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/attuned-gateway/internal/client"
)

func newStateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Manage stored user state",
	}
	cmd.AddCommand(
		newStateGetCmd(c),
		newStateSetCmd(c),
		newStateDeleteCmd(c),
		newStateHistoryCmd(c),
	)
	return cmd
}

func newStateGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user_id>",
		Short: "Show a user's latest snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.client().GetState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, s)
			case formatQuiet:
				for _, name := range sortedAxes(s.Axes) {
					fmt.Fprintf(c.out, "%s=%g\n", name, s.Axes[name])
				}
			default:
				printState(c.out, s)
			}
			return nil
		},
	}
}

func newStateSetCmd(c *cli) *cobra.Command {
	var (
		axisPairs  []string
		source     string
		confidence float64
		message    string
	)

	cmd := &cobra.Command{
		Use:   "set <user_id> --axis name=value [--axis name=value ...]",
		Short: "Replace a user's latest snapshot",
		Long: `Replace a user's latest snapshot.

The snapshot is overwritten, not merged: axes left out are dropped. When the
gateway has inference enabled, --message adds inferred axes that explicit
--axis values override.`,
		Example: `  attuned state set u1 --axis warmth=0.8 --axis formality=0.2
  attuned state set u1 --source inferred --confidence 0.6 --message "need this now!!"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			axes, err := parseAxes(axisPairs)
			if err != nil {
				return err
			}
			if len(axes) == 0 && message == "" {
				return fmt.Errorf("at least one --axis or --message is required")
			}

			update := client.StateUpdate{
				UserID:  args[0],
				Source:  source,
				Axes:    axes,
				Message: message,
			}
			if cmd.Flags().Changed("confidence") {
				update.Confidence = &confidence
			}

			if err := c.client().UpsertState(cmd.Context(), update); err != nil {
				return err
			}
			if c.format == formatPretty {
				fmt.Fprintf(c.out, "Stored state for %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&axisPairs, "axis", "a", nil, "axis value as name=value (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "self_report, inferred or mixed (default self_report)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "confidence in [0, 1]")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text to infer axes from")
	return cmd
}

func newStateDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <user_id>",
		Aliases: []string{"rm"},
		Short:   "Delete a user's state and history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().DeleteState(cmd.Context(), args[0]); err != nil {
				return err
			}
			if c.format == formatPretty {
				fmt.Fprintf(c.out, "Deleted state for %s\n", args[0])
			}
			return nil
		},
	}
}

func newStateHistoryCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user_id>",
		Short: "List a user's snapshots, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.client().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, h)
			case formatQuiet:
				fmt.Fprintln(c.out, len(h.Snapshots))
			default:
				printHistory(c.out, h)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum snapshots to return (server default when 0)")
	return cmd
}

func newContextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "context <user_id>",
		Short: "Show prompt guidance for a user's stored state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := c.client().Context(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, pc)
			case formatQuiet:
				for _, g := range pc.Guidelines {
					fmt.Fprintln(c.out, g)
				}
			default:
				printPromptContext(c.out, pc)
			}
			return nil
		},
	}
}

func newTranslateCmd(c *cli) *cobra.Command {
	var (
		axisPairs  []string
		source     string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:     "translate --axis name=value [--axis name=value ...]",
		Short:   "Show prompt guidance for inline axes without storing them",
		Example: `  attuned translate --axis cognitive_load=0.9 --axis anxiety_level=0.8`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			axes, err := parseAxes(axisPairs)
			if err != nil {
				return err
			}
			in := client.TranslateInput{Axes: axes, Source: source}
			if cmd.Flags().Changed("confidence") {
				in.Confidence = &confidence
			}

			pc, err := c.client().Translate(cmd.Context(), in)
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, pc)
			case formatQuiet:
				for _, g := range pc.Guidelines {
					fmt.Fprintln(c.out, g)
				}
			default:
				printPromptContext(c.out, pc)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&axisPairs, "axis", "a", nil, "axis value as name=value (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "self_report, inferred or mixed")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "confidence in [0, 1]")
	return cmd
}

func newInferCmd(c *cli) *cobra.Command {
	var (
		features bool
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "infer <message...>",
		Short: "Estimate axes from a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.client().Infer(cmd.Context(), client.InferInput{
				Message:         strings.Join(args, " "),
				UserID:          userID,
				IncludeFeatures: features,
			})
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, res)
			case formatQuiet:
				for _, e := range res.Estimates {
					fmt.Fprintf(c.out, "%s=%g\n", e.Axis, e.Value)
				}
			default:
				printEstimates(c.out, res)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&features, "features", false, "include the extracted lexical features")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "compare against this user's baseline")
	return cmd
}

func newAxesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "axes",
		Short: "List the canonical axes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			axes, err := c.client().Axes(cmd.Context())
			if err != nil {
				return err
			}
			switch c.format {
			case formatJSON:
				return writeJSON(c.out, axes)
			case formatQuiet:
				for _, a := range axes {
					fmt.Fprintln(c.out, a.Name)
				}
			default:
				printAxisList(c.out, axes)
			}
			return nil
		},
	}
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.client().Health(cmd.Context())
			if st == nil {
				return err
			}
			switch c.format {
			case formatJSON:
				if jerr := writeJSON(c.out, st); jerr != nil {
					return jerr
				}
			case formatQuiet:
				fmt.Fprintln(c.out, st.Status)
			default:
				printHealth(c.out, st)
			}
			return err
		},
	}
}
