package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	// 注册 s3 blob 后端
	_ "github.com/yeisme/tagstore/pkg/internal/storage/s3"
)

var (
	// gcGrace 覆盖 gc.grace_period，小于 0 时使用配置值.
	gcGrace time.Duration

	blobCmd = &cobra.Command{
		Use:               "blob",
		Short:             "Blob store related commands",
		Aliases:           []string{"ofs"},
		PersistentPreRunE: loadConfig,
	}

	blobListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list stored blobs with their metadata",
		Aliases: []string{"ls", "l"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := blob.Open(ctx, &configs.GetConfig().Blob)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			index, err := st.Snapshot(ctx)
			if err != nil {
				return err
			}

			labels := make([]string, 0, len(index))
			for label := range index {
				labels = append(labels, label)
			}

			slices.Sort(labels)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tFNAME\tLENGTH\tLAST MODIFIED")

			for _, label := range labels {
				meta := index[label]

				length := "-"
				if n, ok := meta.ContentLength(); ok {
					length = fmt.Sprint(n)
				}

				modified, _ := meta[blob.KeyLastModified].(string)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", label, meta.FName(), length, modified)
			}

			return w.Flush()
		},
	}

	blobGCCmd = &cobra.Command{
		Use:   "gc",
		Short: "delete blobs that no datum references",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configs.GetConfig()

			mgr, err := storage.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer mgr.Close(ctx)

			grace := gcGrace
			if grace < 0 {
				grace = cfg.GC.GetGracePeriod()
			}

			res, err := service.NewCollector(ctxPkg.WithStorageManager(ctx, mgr)).Collect(ctx, grace)
			if err != nil {
				return err
			}

			b, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}
)

// registerBlobCommands 注册 Blob 相关命令.
func registerBlobCommands() {
	blobGCCmd.Flags().DurationVar(&gcGrace, "grace", -1, "grace period, defaults to gc.grace_period")

	blobCmd.AddCommand(blobListCmd)
	blobCmd.AddCommand(blobGCCmd)

	rootCmd.AddCommand(blobCmd)
}
