package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/artifetch/config"
)

func newConfigCommand(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change artifetch settings",
		Long: `Settings live in ~/.config/artifetch/config.yaml (global) and
.artifetch.yaml in the git root (local). The local file is usually
committed and cannot hold a token.

Keys: ` + strings.Join(config.Keys, ", "),
	}
	cmd.AddCommand(
		newConfigSetCommand(env),
		newConfigUnsetCommand(env),
		newConfigListCommand(env),
	)
	return cmd
}

type configSetCommand struct {
	env   *environment
	local bool
}

func newConfigSetCommand(env *environment) *cobra.Command {
	set := &configSetCommand{env: env}

	cmd := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Store a setting",
		Example: "artifetch config set base_url https://gitlab.example.com/api/v4 --local",
		Args:    cobra.ExactArgs(2),
		RunE:    set.RunE,
	}
	cmd.Flags().BoolVar(&set.local, "local", false, "write the git root's .artifetch.yaml")
	return cmd
}

func (s *configSetCommand) RunE(cmd *cobra.Command, args []string) error {
	saver := config.NewSaver(s.env.resolver(discardLogger()))
	if err := saver.Set(args[0], args[1], s.local); err != nil {
		return err
	}
	fmt.Fprintf(s.env.stdout, "%s set (%s)\n", args[0], scopeName(s.local))
	return nil
}

type configUnsetCommand struct {
	env   *environment
	local bool
}

func newConfigUnsetCommand(env *environment) *cobra.Command {
	unset := &configUnsetCommand{env: env}

	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a stored setting",
		Args:  cobra.ExactArgs(1),
		RunE:  unset.RunE,
	}
	cmd.Flags().BoolVar(&unset.local, "local", false, "edit the git root's .artifetch.yaml")
	return cmd
}

func (u *configUnsetCommand) RunE(cmd *cobra.Command, args []string) error {
	saver := config.NewSaver(u.env.resolver(discardLogger()))
	return saver.Unset(args[0], u.local)
}

type configListCommand struct {
	env *environment
}

func newConfigListCommand(env *environment) *cobra.Command {
	list := &configListCommand{env: env}

	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective settings and where each came from",
		Args:  cobra.NoArgs,
		RunE:  list.RunE,
	}
}

func (l *configListCommand) RunE(cmd *cobra.Command, args []string) error {
	resolver := l.env.resolver(discardLogger())
	resolved := resolver.Resolve(nil)

	writeSettings(l.env.stdout, resolved)
	for _, w := range resolver.Warnings {
		fmt.Fprintln(l.env.stderr, "warning:", w)
	}
	return nil
}

func writeSettings(w io.Writer, resolved *config.Resolved) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Key", "Value", "Source"})

	for _, key := range resolved.Keys() {
		value := resolved.Get(key)
		if key == config.KeyToken {
			value = maskToken(value)
		}
		table.Append([]string{key, value, string(resolved.Source(key))})
	}
	table.Render()
}

// maskToken keeps the last four characters.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}

func scopeName(local bool) string {
	if local {
		return "local"
	}
	return "global"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
