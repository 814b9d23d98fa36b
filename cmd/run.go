package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/bench-engine/api/rest"
	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/events"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/internal/reporter"
	"yqhp/bench-engine/internal/suite"
	"yqhp/bench-engine/pkg/logger"
	"yqhp/bench-engine/pkg/types"
)

// errSuiteFailed 套件运行完成但存在失败场景
var errSuiteFailed = errors.New("suite failed")

type runOptions struct {
	jsonOut        string
	listen         string
	sets           []string
	parallel       int
	updateBaseline bool
	hold           bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [suite.yaml]",
		Short: "执行基准套件",
		Long: `按配置执行基准套件，输出评分、回归分析、告警和优化建议。

任一场景失败时以非零状态退出。`,
		Example: `  # 基本执行
  bench-engine run suite.yaml

  # 并行执行，最多同时运行 3 个场景
  bench-engine run --parallel 3 suite.yaml

  # 覆盖配置项并输出 JSON 结果
  bench-engine run --set scenarios.checkout.users=50 --out-json result.json suite.yaml

  # 开启实时进度服务 (/ws/events, /metrics)
  bench-engine run --listen :8090 suite.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.configPath(args)
			if err != nil {
				return err
			}
			return runSuite(cmd, g, opts, path)
		},
	}

	cmd.Flags().StringVar(&opts.jsonOut, "out-json", "", "输出 JSON 结果到文件 (- 表示标准输出)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "实时进度服务监听地址，如 :8090")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "覆盖配置项，格式: key=value (可多次指定)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "并行执行场景，指定最大并发数")
	cmd.Flags().BoolVar(&opts.updateBaseline, "update-baseline", false, "无论回归结果如何都用本次结果更新基线")
	cmd.Flags().BoolVar(&opts.hold, "hold", false, "运行结束后保持进度服务直到收到中断信号")
	return cmd
}

func runSuite(cmd *cobra.Command, g *globalOptions, opts *runOptions, path string) error {
	overrides, err := parseSets(opts.sets)
	if err != nil {
		return err
	}
	if opts.parallel > 0 {
		overrides["scheduling.mode"] = config.ModeParallel
		overrides["scheduling.max_parallel"] = strconv.Itoa(opts.parallel)
	}
	if opts.listen != "" {
		overrides["server.enabled"] = "true"
		overrides["server.address"] = opts.listen
	}
	if opts.jsonOut != "" {
		overrides["output.json_path"] = opts.jsonOut
	}

	cfg, err := config.NewLoader().WithConfigPath(path).WithCmdArgs(overrides).Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if g.debug {
		cfg.Logging.Level = "debug"
	}
	if g.quiet {
		cfg.Output.Console = false
	}
	log := logger.New(&cfg.Logging)
	defer func() { _ = log.Sync() }()

	collector := metrics.NewCollector()
	stream := events.NewStream(cfg.Events.Buffer)

	suiteOpts := []suite.Option{
		suite.WithEvents(stream),
		suite.WithCollector(collector),
		suite.WithLogger(log),
	}
	if opts.updateBaseline {
		suiteOpts = append(suiteOpts, suite.WithForceBaselineUpdate())
	}
	orch, err := suite.New(cfg, suiteOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *rest.Server
	if cfg.Server.Enabled {
		srv = rest.NewServer(&rest.Config{Address: cfg.Server.Address, EnableCORS: true},
			rest.WithResults(orch),
			rest.WithAlerts(orch.Alerts()),
			rest.WithRegistry(collector.Registry()),
			rest.WithLogger(log.Named("server")),
		)
		go func() {
			if err := srv.StartWithContext(ctx); err != nil {
				log.Error("progress server stopped", zap.Error(err))
			}
		}()
		log.Info("progress server listening", zap.String("address", cfg.Server.Address))
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		forwardEvents(stream.C(), srv, log.Named("events"))
	}()

	if cfg.Output.Console {
		fmt.Fprintf(cmd.OutOrStdout(), Banner+"\n", Version)
	}

	result, runErr := orch.Run(ctx)
	stream.Close()
	<-drained

	if cfg.Output.JSONPath != "" {
		if err := reporter.WriteJSON(cfg.Output.JSONPath, result); err != nil {
			return err
		}
		log.Info("result written", zap.String("path", cfg.Output.JSONPath))
	}
	if cfg.Output.Console {
		if err := reporter.WriteSummary(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}

	if srv != nil && opts.hold && runErr == nil {
		log.Info("run finished, serving results until interrupted")
		<-ctx.Done()
	}

	if runErr != nil {
		return fmt.Errorf("套件运行中止: %w", runErr)
	}
	if !result.OverallResults.Success {
		return fmt.Errorf("%w: %d/%d 个场景失败", errSuiteFailed, result.OverallResults.ScenariosFailed, result.OverallResults.ScenariosRun)
	}
	return nil
}

// forwardEvents 消费事件流直到关闭，推送到 websocket 订阅者。
func forwardEvents(ch <-chan types.Event, srv *rest.Server, log *zap.Logger) {
	for ev := range ch {
		if srv != nil {
			srv.Hub().Broadcast(ev)
		}
		switch p := ev.Payload.(type) {
		case types.ScenarioStatus:
			log.Info("scenario", zap.String("scenario", ev.Scenario), zap.String("status", p.Status),
				zap.Float64("score", p.Score), zap.String("error", p.Error))
		case types.StageProgress:
			log.Debug("stage", zap.String("scenario", ev.Scenario), zap.String("stage", p.Stage), zap.Float64("percent", p.Percent))
		case types.MetricSnapshot:
			log.Debug("snapshot", zap.String("scenario", ev.Scenario), zap.Int("workers", p.ActiveWorkers),
				zap.Float64("rps", p.RPS), zap.Float64("avg_ms", p.AvgLatency), zap.Float64("error_rate", p.ErrorRate))
		}
	}
}

// parseSets 解析 key=value 形式的覆盖项
func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("无效的 --set 参数 %q，格式应为 key=value", s)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
