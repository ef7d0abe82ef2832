package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write gadr settings",
	Long: `gadr settings live in git config under the adr.* section, so they
are scoped per repository and shareable the same way as any other git
configuration. A .gadr.yaml file and GADR_ environment variables
provide lower-precedence layers.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		val, ok := a.repo.ConfigGet(ctx, args[0])
		if !ok {
			fatal(fmt.Errorf("%s is not set", args[0]))
		}
		fmt.Println(val)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one setting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		if err := a.repo.ConfigSet(ctx, args[0], args[1]); err != nil {
			fatal(err)
		}
		fmt.Printf("%s %s = %s\n", renderPass("✓"), args[0], args[1])
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all adr.* settings",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fatal(err)
		}
		entries := a.repo.ConfigList(ctx, "adr")
		if len(entries) == 0 {
			fmt.Println(renderDim("no adr.* settings in git config (defaults apply)"))
			return
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s = %s\n", renderAccent(k), entries[k])
		}
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
}
