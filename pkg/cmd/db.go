package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "database maintenance commands",
	}

	// 创建或升级 datum/tag 表结构.
	dbMigrateCmd = &cobra.Command{
		Use:     "migrate",
		Short:   "create or upgrade the datum and tag tables",
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := db.New(ctx, &configs.GetConfig().DB)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Migrate(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")

			return nil
		},
	}
)

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbMigrateCmd)
}
