package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/zmt/internal/app/run"
	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF5F"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
)

// progressUI 是交互终端的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：resize 大文件时长时间没有事件，也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写入任何文件)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "%s\n", titleStyle.Render(fmt.Sprintf("[%s] zmt %s (%s)", now.Format("15:04:05"), eff.Command, mode)))
	fmt.Fprintln(p.w, "配置（生效）:")
	p.kv("config", orDash(eff.ConfigFile))
	p.kv("mode", mode+modeHint)
	switch eff.Command {
	case config.CommandEDI:
		p.kv("avg_dir", eff.AvgDir)
		p.kv("station", orDash(eff.Station))
		p.kv("rr_station", orDash(eff.RRStation))
		p.kv("survey", orDash(eff.SurveyFile))
	case config.CommandMTEdit:
		p.kv("save_path", eff.SavePath)
	default:
		p.kv("cache_path", eff.CachePath)
		p.kv("remote_path", orDash(eff.RemotePath))
		p.kv("survey", orDash(eff.SurveyFile))
		p.kv("tolerance", formatTolerance(eff.Tolerance))
	}

	fmt.Fprintln(p.w, "输出:")
	switch eff.Command {
	case config.CommandEDI:
		p.kv("edi", eff.EDIPath)
	case config.CommandMTEdit:
		p.kv("mtedit", eff.SavePath)
	default:
		p.kv("mtft", eff.SavePath)
		if eff.Apply {
			p.kv("report", reportPath(eff))
		}
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.PhaseScan:
		fmt.Fprintf(p.w, "编目: locals=%d remotes=%d (%s)\n",
			intField(fields, "locals"), intField(fields, "remotes"), formatShortDuration(dur),
		)
	case run.PhaseReconcile:
		fmt.Fprintf(p.w, "配对: pairs=%d matched=%d resized=%d (%s)\n",
			intField(fields, "pairs"), intField(fields, "matched"), intField(fields, "resized"), formatShortDuration(dur),
		)
	case run.PhaseSetup:
		fmt.Fprintf(p.w, "setup: %d (%s)\n", intField(fields, "setups"), formatShortDuration(dur))
	case run.PhaseRead:
		fmt.Fprintf(p.w, "读取: files=%d read=%d (%s)\n",
			intField(fields, "files"), intField(fields, "read"), formatShortDuration(dur),
		)
	case run.PhaseAssemble:
		fmt.Fprintf(p.w, "组装: z_freqs=%d tipper_freqs=%d (%s)\n",
			intField(fields, "z_freqs"), intField(fields, "tipper_freqs"), formatShortDuration(dur),
		)
	case run.PhaseWrite:
		target, _ := fields["target"].(string)
		fmt.Fprintf(p.w, "写出: %s (%s)\n", target, formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	var status string
	switch res.Status {
	case domain.StatusMatched, domain.StatusResized, domain.StatusProcessed:
		p.ok++
		status = okStyle.Render(strings.ToUpper(res.Status))
	case domain.StatusUnmatched:
		p.fail++
		status = warnStyle.Render("UNMATCHED")
	default:
		p.fail++
		status = failStyle.Render("FAIL")
	}

	switch {
	case res.ErrorCode != "":
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, res.File, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case res.RemoteFile != "":
		fmt.Fprintf(p.w, "[%d/%d] %s %s remote=%s action=%s offset=%d dt=%ds n=%d\n",
			idx, total, res.File, status, res.RemoteFile, res.Action, res.OffsetSamples, res.TimeDiffSec, res.SampleCount,
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", idx, total, res.File, status, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

// Close 停止 keepalive ticker；可重复调用。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) kv(k, v string) {
	fmt.Fprintf(p.w, "  %s %s\n", keyStyle.Render(k+":"), v)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatTolerance(overrides map[string]int) string {
	if len(overrides) == 0 {
		return "默认"
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%ds", k, overrides[k]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
