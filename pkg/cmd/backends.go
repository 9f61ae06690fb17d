package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/storage/db"
	"github.com/yeisme/tagstore/pkg/internal/storage/kv"
	"github.com/yeisme/tagstore/pkg/internal/storage/mq"
)

// backendsCmd 列出编译进来的存储与消息后端，* 标记当前配置选中的一项.
var backendsCmd = &cobra.Command{
	Use:     "backends",
	Short:   "list compiled-in database, blob, kv and event bus backends",
	Aliases: []string{"drivers"},
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.GetConfig()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tNAME\tACTIVE")

		row := func(kind, name string, active bool) {
			mark := ""
			if active {
				mark = "*"
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\n", kind, name, mark)
		}

		for _, t := range db.GetRegisteredDBTypes() {
			row("db", string(t), t == cfg.DB.Dialect())
		}

		for _, t := range blob.GetRegisteredBackends() {
			row("blob", string(t), t == cfg.Blob.Backend)
		}

		for _, t := range kv.GetRegisteredKVTypes() {
			row("kv", string(t), t == cfg.KV.Type)
		}

		for _, t := range mq.GetRegisteredTypes() {
			row("mq", string(t), cfg.Events.Enabled && t == cfg.MQ.Type)
		}

		return tw.Flush()
	},
}

func registerBackendsCommand() {
	rootCmd.AddCommand(backendsCmd)
}
