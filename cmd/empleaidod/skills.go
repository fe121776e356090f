package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Empleaido-Core/internal/skill"
)

var skillsCmd = &cobra.Command{
	Use:   "skills [agent]",
	Short: "列出技能目录",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		agents := registry.Agents()
		if len(args) == 1 {
			catalog, err := registry.Resolve(args[0])
			if err != nil {
				return err
			}
			agents = []string{catalog.Profile.AgentID}
		}
		return printSkills(cmd.OutOrStdout(), registry, agents)
	},
}

var validateRegistryCmd = &cobra.Command{
	Use:   "validate-registry <file>",
	Short: "校验技能目录文件",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := skill.LoadFile(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d 个员工目录校验通过\n", args[0], len(registry.Agents()))
		return err
	},
}

func printSkills(out io.Writer, registry *skill.Registry, agents []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSKILL\tSTATUS\tCRITICAL\tDESCRIPTION")
	for _, id := range agents {
		catalog, ok := registry.Lookup(id)
		if !ok {
			continue
		}
		for _, def := range catalog.Definitions() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", catalog.Profile.ShortName(), def.Name, def.Status, def.Critical, def.Description)
		}
	}
	return tw.Flush()
}
