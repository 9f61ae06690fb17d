// Package main 启动 tagstore 服务与命令行工具.
package main

import (
	"os"

	"github.com/yeisme/tagstore/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
