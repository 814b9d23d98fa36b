package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/suite"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "validate [suite.yaml]",
		Short: "校验套件配置并打印执行顺序",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.configPath(args)
			if err != nil {
				return err
			}
			overrides, err := parseSets(sets)
			if err != nil {
				return err
			}

			cfg, err := config.NewLoader().WithConfigPath(path).WithCmdArgs(overrides).Load()
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					out := cmd.ErrOrStderr()
					fmt.Fprintf(out, "%s: %d 个配置错误\n", path, len(verrs))
					for _, e := range verrs {
						fmt.Fprintf(out, "  - %s: %s\n", e.Field, e.Message)
					}
				}
				return err
			}

			out := cmd.OutOrStdout()
			plan := suite.ResolveOrder(cfg.Scenarios)
			fmt.Fprintf(out, "%s: 配置有效 (suite %s, %s 模式)\n", path, cfg.Suite.Name, cfg.Scheduling.Mode)
			for i, name := range plan.Order {
				sc := findScenario(cfg, name)
				fmt.Fprintf(out, "  %d. %s [%s] users=%d target=%s\n", i+1, name, sc.Type, sc.Users, sc.Target)
			}
			if len(plan.Unresolved) > 0 {
				fmt.Fprintf(out, "  存在循环依赖，按声明顺序执行: %v\n", plan.Unresolved)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "覆盖配置项，格式: key=value (可多次指定)")
	return cmd
}

func findScenario(cfg *config.BenchmarkConfig, name string) config.ScenarioConfig {
	for _, sc := range cfg.Scenarios {
		if sc.Name == name {
			return sc
		}
	}
	return config.ScenarioConfig{Name: name}
}
