package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/zmt/internal/app/rref"
	"github.com/John-Robertt/zmt/internal/app/setup"
	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
	"github.com/John-Robertt/zmt/internal/infra/ledger"
	"github.com/John-Robertt/zmt/internal/infra/zcache"
	"github.com/John-Robertt/zmt/internal/mtft"
	"github.com/John-Robertt/zmt/internal/scan"
	"github.com/John-Robertt/zmt/internal/survey"
)

// ReportFile 是 apply 模式下写到状态目录的报告文件名。
const ReportFile = "report.json"

// ExecuteConfig 执行一次 cfg 流程（dry-run/apply），并返回对外稳定的 RunReport。
//
// 流程：编目本地与 remote 缓存 -> 配对/对齐 -> 按采样率排序 -> setup 聚合 -> 写 mtft24.cfg。
// dry-run 不写任何文件：resize 只给出计划路径，创建序号只记在内存里。
// 单条记录找不到 reference 不算失败；编目/对齐/写出失败会以合成条目的形式出现在报告里。
func ExecuteConfig(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer) domain.RunReport {
	obs = observerOrNop(obs)
	if log == nil {
		log = zap.NewNop()
	}
	obs.OnStart(eff)

	rr := newReport(string(config.CommandCfg), eff.CachePath, eff.Apply)

	seq, closeSeq, err := openSequencer(eff)
	if err != nil {
		return failReport(rr, err, "打开 ledger 失败")
	}
	defer closeSeq()

	store := zcache.New(!eff.Apply)

	scanStarted := time.Now()
	locals, err := scan.Catalog(ctx, store, seq, eff.CachePath, scan.Options{Components: setup.DefaultComponents()})
	if err != nil {
		return failReport(rr, err, "编目本地缓存失败")
	}
	var remotes []domain.TimeSeriesRecord
	if eff.RemotePath != "" {
		remotes, err = scan.Catalog(ctx, store, seq, eff.RemotePath, scan.Options{AllVersions: true})
		if err != nil {
			return failReport(rr, err, "编目 remote 缓存失败")
		}
	}
	obs.OnPhaseDone(PhaseScan, map[string]any{
		"locals":  len(locals),
		"remotes": len(remotes),
	}, time.Since(scanStarted))

	reconcileStarted := time.Now()
	var pairs []domain.ReconciledPair
	if eff.RemotePath != "" {
		m := rref.New(store, seq, mergeTolerance(eff.Tolerance), log)
		var diags []domain.Diagnostic
		pairs, diags, err = m.Reconcile(ctx, locals, remotes)
		if err != nil {
			return failReport(rr, err, "配对 remote reference 失败")
		}
		rr.Diagnostics = append(rr.Diagnostics, diags...)
	} else {
		pairs = make([]domain.ReconciledPair, 0, len(locals))
		for _, l := range locals {
			pairs = append(pairs, domain.ReconciledPair{Local: l, Action: domain.ActionUnmatched, SampleCount: l.SampleCount})
		}
	}
	pairs = rref.SortBySamplingRate(pairs)

	var matched, resized int
	for i, p := range pairs {
		it := itemFor(p, eff.RemotePath != "")
		switch it.Status {
		case domain.StatusMatched:
			matched++
		case domain.StatusResized:
			resized++
		}
		rr.Items = append(rr.Items, it)
		obs.OnItemDone(i+1, len(pairs), it, 0)
	}
	obs.OnPhaseDone(PhaseReconcile, map[string]any{
		"pairs":   len(pairs),
		"matched": matched,
		"resized": resized,
	}, time.Since(reconcileStarted))

	setupStarted := time.Now()
	records := make([]domain.TimeSeriesRecord, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, p.Local)
	}
	setups := setup.Group(records, setup.DefaultOptions())
	if eff.RemotePath != "" {
		setups = setup.WithRemote(setups, eff.RemotePath)
	}
	if eff.SurveyFile != "" {
		table, err := survey.Load(eff.SurveyFile)
		if err != nil {
			return failReport(rr, err, "读取测站调查文件失败")
		}
		var diags []domain.Diagnostic
		setups, diags = setup.ApplySurvey(setups, table, eff.Station, eff.RRStation)
		rr.Diagnostics = append(rr.Diagnostics, diags...)
	}
	obs.OnPhaseDone(PhaseSetup, map[string]any{"setups": len(setups)}, time.Since(setupStarted))

	writeStarted := time.Now()
	cfg := mtft.Build(pairs, setups, mtft.DefaultParams())
	if eff.Apply {
		if err := mtft.WriteFile(eff.SavePath, cfg); err != nil {
			return failReport(rr, &domain.Error{Code: domain.ErrCodeIOFailed, Path: eff.SavePath, Err: err}, "写入 mtft24.cfg 失败")
		}
		rr.Outputs = append(rr.Outputs, eff.SavePath)
		log.Info("wrote processing config", zap.String("path", eff.SavePath), zap.Int("rows", len(cfg.Rows)))
	}
	obs.OnPhaseDone(PhaseWrite, map[string]any{
		"rows":   len(cfg.Rows),
		"target": eff.SavePath,
	}, time.Since(writeStarted))

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// WriteReport 把报告写到 dir/report.json（原子替换）。
func WriteReport(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, ReportFile, b)
}

// openSequencer：apply 用持久化 ledger；dry-run 只在内存里分配，不落盘。
func openSequencer(eff config.EffectiveConfig) (domain.Sequencer, func(), error) {
	if !eff.Apply || eff.LedgerPath == "" {
		return ledger.NewMemory(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(eff.LedgerPath), 0o755); err != nil {
		return nil, nil, &domain.Error{Code: domain.ErrCodeIOFailed, Path: eff.LedgerPath, Err: err}
	}
	l, err := ledger.Open(eff.LedgerPath)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

// mergeTolerance 以默认表为底，叠加配置里显式给出的采样率。
func mergeTolerance(overrides map[string]int) map[string]int {
	tol := rref.DefaultTolerance()
	for k, v := range overrides {
		tol[k] = v
	}
	return tol
}

func itemFor(p domain.ReconciledPair, remoteConfigured bool) domain.ItemResult {
	it := domain.ItemResult{
		File:          p.Local.Name,
		Station:       p.Local.Station,
		RateToken:     p.Local.RateToken,
		Action:        string(p.Action),
		OffsetSamples: p.OffsetSamples,
		TimeDiffSec:   p.TimeDiffSec,
		SampleCount:   p.SampleCount,
	}
	switch {
	case p.Reference != nil:
		it.RemoteFile = p.Reference.Name
		if p.Action == domain.ActionDirect {
			it.Status = domain.StatusMatched
		} else {
			it.Status = domain.StatusResized
		}
	case remoteConfigured:
		it.Status = domain.StatusUnmatched
		it.ErrorCode = domain.ErrCodeNoMatch
		it.ErrorMsg = fmt.Sprintf("找不到 station=%s rate=%s 的 remote reference", p.Local.Station, p.Local.RateToken)
	default:
		// 没有配置 remote：单站处理，不算未配对。
		it.Status = domain.StatusProcessed
	}
	return it
}

func newReport(command, path string, apply bool) domain.RunReport {
	return domain.RunReport{
		RunID:     uuid.NewString(),
		Command:   command,
		Path:      path,
		DryRun:    !apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 64),
	}
}

// failReport 追加一条合成失败条目并收尾。
func failReport(rr domain.RunReport, err error, msg string) domain.RunReport {
	rr.Items = append(rr.Items, syntheticFailed(errorCode(err), fmt.Sprintf("%s：%v", msg, err)))
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		File:      "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func errorCode(err error) string {
	if c := domain.Code(err); c != "" {
		return c
	}
	if c := config.Code(err); c != "" {
		return c
	}
	return domain.ErrCodeIOFailed
}
