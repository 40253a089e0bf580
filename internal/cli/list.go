package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newListPhasesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list-phases",
		Short: "List configured phases in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Quiet = true
			rt, err := app.setup("", false, false)
			if err != nil {
				return err
			}
			defer rt.release()

			for _, ph := range rt.cfg.Phases {
				marker := " "
				if ph.Breakpoint {
					marker = "⏸"
				}
				fmt.Fprintf(app.Out, "%-20s %s %s (%d steps)\n", ph.ID, marker, ph.Label, len(ph.Steps))
			}
			return nil
		},
	}
}

func newListProfilesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list-profiles",
		Short: "List available stack profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Quiet = true
			rt, err := app.setup("", false, false)
			if err != nil {
				return err
			}
			defer rt.release()

			names := make([]string, 0, len(rt.cfg.Profiles))
			for name := range rt.cfg.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				p := rt.cfg.Profiles[name]
				attrs := ""
				if p.Recommended {
					attrs = " [recommended]"
				}
				if p.DryRunDefault {
					attrs += " [dry-run default]"
				}

				overrides := make([]string, 0, len(p.Groups))
				for group, enabled := range p.Groups {
					if !enabled {
						overrides = append(overrides, "-"+group)
					} else {
						overrides = append(overrides, "+"+group)
					}
				}
				sort.Strings(overrides)

				fmt.Fprintf(app.Out, "%-20s %s%s\n", name, strings.Join(overrides, " "), attrs)
			}
			return nil
		},
	}
}

func newListScriptsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list-scripts",
		Short: "List configured steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Quiet = true
			rt, err := app.setup("", false, false)
			if err != nil {
				return err
			}
			defer rt.release()

			for _, ph := range rt.cfg.Phases {
				steps, err := rt.cfg.EnabledSteps(ph.ID)
				if err != nil {
					return err
				}
				for _, def := range steps {
					attrs := ""
					if def.Critical {
						attrs = " [critical]"
					}
					if def.Group != "" {
						attrs += fmt.Sprintf(" (group: %s)", def.Group)
					}
					fmt.Fprintf(app.Out, "%-36s %s%s\n", def.ID(), def.Label, attrs)
				}
			}
			return nil
		},
	}
}
