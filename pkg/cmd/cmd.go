// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/log"
)

var (
	// configPath 配置文件或所在目录.
	configPath string
	// debug 输出更多诊断信息.
	debug bool

	rootCmd = &cobra.Command{
		Use:           "tagstore",
		Short:         "A tag-indexed metadata store with a blob facade",
		SilenceUsage:  true,
		SilenceErrors: false,
		// 不带子命令时等同于 serve
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print diagnostic output")

	registerServeCommands()
	registerConfigsCommands()
	registerDBCommands()
	registerBlobCommands()
	registerBackendsCommand()
}

// loadConfig 为非 serve 子命令加载配置与日志. serve 由 app 自行初始化.
func loadConfig(*cobra.Command, []string) error {
	if err := configs.InitConfig(configPath); err != nil {
		return err
	}

	log.Init()

	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
