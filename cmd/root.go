// Package cmd 提供 bench-engine CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
   __                  __
  / /  ___ ___  ____  / /    Bench Engine %s
 / _ \/ -_) _ \/ __/ / _ \
/_.__/\__/_//_/\__/ /_//_/
`
)

// globalOptions 所有子命令共享的 flags
type globalOptions struct {
	cfgFile string
	debug   bool
	quiet   bool
}

// NewRootCmd 创建根命令及全部子命令
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "bench-engine",
		Short: "并发基准测试编排引擎",
		Long: `bench-engine 按配置编排一组基准场景（负载、压力、缓存、数据库、API、内存、扩展性），
分阶段加压并采集指标，计算评分，与基线比较并产生告警。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "套件配置文件路径")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "启用调试日志")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts), newVersionCmd())
	return root
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// configPath 位置参数优先于 --config
func (o *globalOptions) configPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if o.cfgFile != "" {
		return o.cfgFile, nil
	}
	return "", fmt.Errorf("需要指定套件配置文件: bench-engine run <suite.yaml> 或 --config")
}
