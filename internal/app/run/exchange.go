package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/zmt/internal/app/tensor"
	"github.com/John-Robertt/zmt/internal/avg"
	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/edi"
	"github.com/John-Robertt/zmt/internal/mtedit"
	"github.com/John-Robertt/zmt/internal/mtft"
	"github.com/John-Robertt/zmt/internal/survey"
)

// AvgFiles 返回 avg_dir 下 ex/ey 两个测量文件的固定位置（<avg_dir>/4/4.avg、<avg_dir>/5/5.avg）。
func AvgFiles(avgDir string) []string {
	return []string{
		filepath.Join(avgDir, "4", "4.avg"),
		filepath.Join(avgDir, "5", "5.avg"),
	}
}

// ExecuteEDI 读取 .avg 测量文件，组装阻抗/倾子张量并写出 EDI。
//
// - 缺少某个 .avg 记为该文件失败，其余文件照常组装；一个都读不到时不写 EDI
// - 配置了调查文件但其中没有该测站：not_found，不写 EDI
// - mtft24.cfg / mtedit.cfg 缺失只产生诊断，使用默认通道与参数
func ExecuteEDI(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer) domain.RunReport {
	obs = observerOrNop(obs)
	if log == nil {
		log = zap.NewNop()
	}
	obs.OnStart(eff)

	rr := newReport(string(config.CommandEDI), eff.AvgDir, eff.Apply)

	readStarted := time.Now()
	files := AvgFiles(eff.AvgDir)
	batches := make([]tensor.Batch, 0, len(files))
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return failReport(rr, err, "已取消")
		}
		oneStarted := time.Now()
		it := domain.ItemResult{File: path, Station: eff.Station, Status: domain.StatusProcessed}
		f, err := avg.ReadFile(path)
		if err != nil {
			it.Status = domain.StatusFailed
			it.ErrorCode = errorCode(err)
			it.ErrorMsg = err.Error()
		} else {
			batches = append(batches, tensor.Batch(f.Components))
		}
		rr.Items = append(rr.Items, it)
		obs.OnItemDone(i+1, len(files), it, time.Since(oneStarted))
	}
	obs.OnPhaseDone(PhaseRead, map[string]any{
		"files": len(files),
		"read":  len(batches),
	}, time.Since(readStarted))
	if len(batches) == 0 {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	assembleStarted := time.Now()
	z, tip := tensor.Assemble(batches...)
	obs.OnPhaseDone(PhaseAssemble, map[string]any{
		"z_freqs":      z.Len(),
		"tipper_freqs": tip.Len(),
	}, time.Since(assembleStarted))

	in := edi.Input{
		Path:      eff.EDIPath,
		Station:   eff.Station,
		RRStation: eff.RRStation,
		Z:         z,
		Tipper:    tip,
		Now:       time.Now(),
	}

	if eff.SurveyFile != "" {
		table, err := survey.Load(eff.SurveyFile)
		if err != nil {
			return failReport(rr, err, "读取测站调查文件失败")
		}
		info, ok := table.Lookup(eff.Station)
		if !ok {
			return failReport(rr, domain.NotFound(eff.SurveyFile, fmt.Errorf("调查文件中没有测站 %s", eff.Station)), "查找测站失败")
		}
		in.Survey = info
		if strings.TrimSpace(eff.RRStation) != "" {
			if rrInfo, ok := table.Lookup(eff.RRStation); ok {
				in.RRSurvey = rrInfo
			} else {
				rr.Diagnostics = append(rr.Diagnostics, domain.Diagnostic{
					Code:    domain.ErrCodeMissingField,
					Subject: eff.RRStation,
					Msg:     "调查文件中找不到 remote 测站，使用默认 reference 坐标",
				})
			}
		}
	}

	if c, err := mtft.ReadFile(eff.MTFTCfg); err == nil {
		in.MTFT = &c
	} else {
		rr.Diagnostics = append(rr.Diagnostics, optionalMissing(eff.MTFTCfg, err))
	}
	if c, err := mtedit.ReadFile(eff.MTEditCfg); err == nil {
		in.MTEdit = &c
	} else {
		rr.Diagnostics = append(rr.Diagnostics, optionalMissing(eff.MTEditCfg, err))
	}

	writeStarted := time.Now()
	ex := edi.Build(in)
	if eff.Apply {
		path, err := edi.Writer{}.Write(ctx, ex)
		if err != nil {
			return failReport(rr, err, "写入 EDI 失败")
		}
		rr.Outputs = append(rr.Outputs, path)
		log.Info("wrote exchange file", zap.String("path", path), zap.Int("freqs", z.Len()))
	} else if _, err := edi.Encode(ex); err != nil {
		return failReport(rr, err, "生成 EDI 失败")
	}
	obs.OnPhaseDone(PhaseWrite, map[string]any{"target": eff.EDIPath}, time.Since(writeStarted))

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// ExecuteMTEdit 写出默认的 mtedit.cfg（save_path 为目录时写到其中的 mtedit.cfg）。
func ExecuteMTEdit(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer) domain.RunReport {
	obs = observerOrNop(obs)
	if log == nil {
		log = zap.NewNop()
	}
	obs.OnStart(eff)

	rr := newReport(string(config.CommandMTEdit), eff.SavePath, eff.Apply)
	if err := ctx.Err(); err != nil {
		return failReport(rr, err, "已取消")
	}

	started := time.Now()
	target := eff.SavePath
	if filepath.Ext(target) == "" {
		target = filepath.Join(target, mtedit.FileName)
	}
	c := mtedit.Default(time.Now())
	it := domain.ItemResult{File: target, Status: domain.StatusProcessed}

	if eff.Apply {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return failReport(rr, &domain.Error{Code: domain.ErrCodeIOFailed, Path: target, Err: err}, "创建目录失败")
		}
		path, err := mtedit.WriteFile(target, c)
		if err != nil {
			return failReport(rr, &domain.Error{Code: domain.ErrCodeIOFailed, Path: target, Err: err}, "写入 mtedit.cfg 失败")
		}
		rr.Outputs = append(rr.Outputs, path)
		log.Info("wrote quality limits", zap.String("path", path))
	}
	rr.Items = append(rr.Items, it)
	obs.OnItemDone(1, 1, it, time.Since(started))
	obs.OnPhaseDone(PhaseWrite, map[string]any{"target": target}, time.Since(started))

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func optionalMissing(path string, err error) domain.Diagnostic {
	code := domain.Code(err)
	if code == "" {
		code = domain.ErrCodeParseFailed
	}
	return domain.Diagnostic{
		Code:    code,
		Subject: path,
		Msg:     fmt.Sprintf("无法读取，使用默认值：%v", err),
	}
}
