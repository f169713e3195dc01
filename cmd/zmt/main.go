package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/zmt/internal/app/run"
	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/logging"
)

func main() {
	if code := execute(os.Args[1:], os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// cli 收集一次进程调用的 flag 与输出目标。
type cli struct {
	configFile string
	verbose    bool
	apply      bool
	station    string
	rrStation  string
	remotePath string

	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger

	// code 是子命令执行后的退出码。
	code int
}

// execute 运行 CLI 并返回退出码：0 干净完成；1 有 unmatched/failed 或配置错误；2 参数错误。
func execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n使用 \"zmt --help\" 查看用法。\n", err)
		return 2
	}
	return c.code
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "zmt",
		Short: "Zonge MT 缓存文件 remote reference 对齐与 EDI 生成",
		Long: `zmt 处理 Zonge 采集的大地电磁数据：

  cfg     编目缓存文件，为每个本地时间序列配对 remote reference 并对齐，写出 mtft24.cfg
  edi     读取 .avg 测量文件，组装阻抗/倾子张量并写出 EDI
  mtedit  写出默认的 mtedit.cfg

默认 dry-run（不写入任何文件）；使用 --apply 落盘。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(c.verbose)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "配置文件路径（默认读取当前目录下的 zmt.yaml，可选）")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "输出 debug 日志（stderr）")
	pf.BoolVar(&c.apply, "apply", false, "执行落盘（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply: true")
	pf.StringVar(&c.station, "station", "", "测站名（覆盖配置）")
	pf.StringVar(&c.rrStation, "rr-station", "", "remote reference 测站名（覆盖配置）")

	cfgCmd := &cobra.Command{
		Use:   "cfg [cache_path]",
		Short: "配对 remote reference 并写出 mtft24.cfg",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.code = c.run(cmd, config.CommandCfg, args)
			return nil
		},
	}
	cfgCmd.Flags().StringVar(&c.remotePath, "remote", "", "remote reference 缓存目录（覆盖配置）")

	ediCmd := &cobra.Command{
		Use:   "edi [avg_dir]",
		Short: "由 .avg 测量文件生成 EDI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.code = c.run(cmd, config.CommandEDI, args)
			return nil
		},
	}

	mteditCmd := &cobra.Command{
		Use:   "mtedit [dir]",
		Short: "写出默认的 mtedit.cfg",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.code = c.run(cmd, config.CommandMTEdit, args)
			return nil
		},
	}

	root.AddCommand(cfgCmd, ediCmd, mteditCmd)
	return root
}

func (c *cli) run(cmd *cobra.Command, command config.Command, args []string) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(c.stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	applySet := cmd.Flags().Changed("apply")

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Command:    command,
		Path:       path,
		ConfigFile: c.configFile,
		Station:    c.station,
		RRStation:  c.rrStation,
		RemotePath: c.remotePath,
		Apply:      c.apply,
		ApplySet:   applySet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, command, applySet && c.apply, err)
		c.emitReport(rr)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progressW, interactive := c.pickProgressWriter()
	var obs run.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	var rr domain.RunReport
	switch command {
	case config.CommandEDI:
		rr = run.ExecuteEDI(ctx, eff, c.logger, obs)
	case config.CommandMTEdit:
		rr = run.ExecuteMTEdit(ctx, eff, c.logger, obs)
	default:
		rr = run.ExecuteConfig(ctx, eff, c.logger, obs)
	}
	if ui != nil {
		ui.Close()
	}

	// apply：写入 <cache_path>/.zmt/report.json；dry-run 禁止落盘。
	if eff.Apply && eff.StateDir() != "" {
		if err := run.WriteReport(eff.StateDir(), rr); err != nil {
			fmt.Fprintf(c.stderr, "写入 report.json 失败：%v\n", err)
			c.emitReport(rr)
			return 1
		}
	}

	c.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	if rr.Clean() {
		return 0
	}
	return 1
}

func (c *cli) emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：matched=%d resized=%d processed=%d unmatched=%d failed=%d",
		rr.Summary.Matched, rr.Summary.Resized, rr.Summary.Processed, rr.Summary.Unmatched, rr.Summary.Failed,
	)
	if isTTY(c.stdout) {
		fmt.Fprintln(c.stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
				continue
			}
			key := it.File
			if key == "" {
				key = "<" + rr.Command + ">"
			}
			fmt.Fprintf(c.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		for _, d := range rr.Diagnostics {
			fmt.Fprintf(c.stderr, "%s %s: %s\n", d.Subject, d.Code, d.Msg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(c.stderr, summary)
}

func reportForConfigError(cwdAbs string, command config.Command, apply bool, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Command:    string(command),
		Path:       cwdAbs,
		DryRun:     !apply,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func reportPath(eff config.EffectiveConfig) string {
	if eff.StateDir() == "" {
		return ""
	}
	return filepath.Join(eff.StateDir(), run.ReportFile)
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	// 完成后告诉用户产物在哪，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if eff.Apply && reportPath(eff) != "" {
		fmt.Fprintf(w, "report: %s\n", reportPath(eff))
	}
	for _, o := range rr.Outputs {
		fmt.Fprintf(w, "out: %s\n", o)
	}
}
