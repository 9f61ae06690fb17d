package cmd

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/tagstore/pkg/configs"
)

// showSecrets 为 true 时 config show 不遮盖密码与密钥.
var showSecrets bool

var (
	configCmd = &cobra.Command{
		Use:               "config",
		Short:             "inspect the effective configuration",
		PersistentPreRunE: loadConfig,
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Run: func(cmd *cobra.Command, args []string) {
			used := configs.GetViper().ConfigFileUsed()
			if used == "" {
				used = "(defaults and environment only)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), used)
		},
	}

	configShowCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the merged configuration as JSON",
		Aliases: []string{"debug"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				configs.GetViper().Debug()
			}

			var tree map[string]any

			raw, err := sonic.Marshal(configs.GetConfig())
			if err == nil {
				err = sonic.Unmarshal(raw, &tree)
			}

			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			if !showSecrets {
				redact(tree)
			}

			out, err := sonic.ConfigStd.MarshalIndent(tree, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}

	// loadConfig 已经做过校验，走到这里说明配置有效.
	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "check the configuration and exit non-zero when it is invalid",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		},
	}
)

// redact 遮盖名字像密码或密钥的非空字符串字段.
func redact(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			redact(val)
		case string:
			name := strings.ToLower(k)
			if val != "" && (strings.Contains(name, "password") || strings.Contains(name, "secret") ||
				name == "jwt" || name == "nkey") {
				m[k] = "******"
			}
		}
	}
}

func registerConfigsCommands() {
	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords and keys in clear text")

	configCmd.AddCommand(configPathCmd, configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
