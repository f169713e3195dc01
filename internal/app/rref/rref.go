// Package rref 为本地时间序列寻找 remote reference 并对齐两者的时间窗口。
package rref

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/John-Robertt/zmt/internal/cachename"
	"github.com/John-Robertt/zmt/internal/domain"
)

// DefaultTolerance 是采样率 token -> 允许的起始时间差（秒）。
func DefaultTolerance() map[string]int {
	return map[string]int{
		"256":  20 * 60,
		"1024": 2 * 60,
		"4096": 5,
	}
}

// Matcher 执行 remote reference 配对。
//
// 约束：
// - 候选按 Seq 降序扫描（越新越优先），与目录遍历顺序无关
// - resize 永远产生新文件，新文件会登记 Seq 并插入候选池
// - 配对成功时两侧样本数相等；offset 以样本为单位且 >= 0
type Matcher struct {
	Store     domain.CacheStore
	Seq       domain.Sequencer
	Tolerance map[string]int
	Logger    *zap.Logger
}

func New(store domain.CacheStore, seq domain.Sequencer, tolerance map[string]int, logger *zap.Logger) *Matcher {
	if tolerance == nil {
		tolerance = DefaultTolerance()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{Store: store, Seq: seq, Tolerance: tolerance, Logger: logger}
}

// Reconcile 为每条本地记录寻找候选并对齐，结果保持 locals 的输入顺序。
// 找不到候选不是错误：返回未配对的 pair 与 no_match 诊断。
func (m *Matcher) Reconcile(ctx context.Context, locals []domain.TimeSeriesRecord, candidates []domain.ReferenceCandidate) ([]domain.ReconciledPair, []domain.Diagnostic, error) {
	log := m.logger()
	pool := make([]domain.ReferenceCandidate, len(candidates))
	copy(pool, candidates)
	sortPool(pool)

	pairs := make([]domain.ReconciledPair, 0, len(locals))
	var diags []domain.Diagnostic

	for _, local := range locals {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		tol, ok := m.Tolerance[local.RateToken]
		if !ok {
			diags = append(diags, domain.Diagnostic{
				Code:    domain.ErrCodeMissingField,
				Subject: local.Name,
				Msg:     fmt.Sprintf("采样率 %s 没有起始时间容差，只接受相同起始时间", local.RateToken),
			})
		}

		pair, found, err := m.match(ctx, local, pool, tol)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			log.Warn("no remote reference", zap.String("file", local.Name), zap.String("station", local.Station), zap.String("rate", local.RateToken))
			diags = append(diags, domain.Diagnostic{
				Code:    domain.ErrCodeNoMatch,
				Subject: local.Name,
				Msg:     fmt.Sprintf("找不到 station=%s rate=%s 的 remote reference", local.Station, local.RateToken),
			})
			pairs = append(pairs, domain.ReconciledPair{
				Local:       local,
				Action:      domain.ActionUnmatched,
				SampleCount: local.SampleCount,
			})
			continue
		}

		if ref := pair.Reference; ref != nil && !inPool(pool, ref.Path) {
			pool = append(pool, *ref)
			sortPool(pool)
		}
		pairs = append(pairs, pair)
	}
	return pairs, diags, nil
}

func (m *Matcher) match(ctx context.Context, local domain.TimeSeriesRecord, pool []domain.ReferenceCandidate, tol int) (domain.ReconciledPair, bool, error) {
	ln, err := cachename.Parse(local.Name)
	if err != nil {
		return domain.ReconciledPair{}, false, domain.ParseFailed(local.Path, err)
	}

	for i := range pool {
		cand := pool[i]
		if cand.Station != local.Station || cand.RateToken != local.RateToken {
			continue
		}

		if cand.StartToken == local.StartToken {
			p, err := m.align(ctx, local, cand, 0, 0)
			return p, err == nil, err
		}

		cn, err := cachename.Parse(cand.Name)
		if err != nil {
			continue
		}
		dt := cachename.DiffSeconds(ln, cn)
		if abs(dt) >= tol {
			continue
		}

		if local.SampleCount == cand.SampleCount {
			return domain.ReconciledPair{
				Local:       local,
				Reference:   &cand,
				Action:      domain.ActionDirect,
				TimeDiffSec: dt,
				SampleCount: local.SampleCount,
			}, true, nil
		}

		skip := ln.RateValue() * abs(dt)
		if skip >= cand.SampleCount {
			m.logger().Debug("skip exceeds reference length",
				zap.String("file", local.Name), zap.String("candidate", cand.Name), zap.Int("skip", skip))
			continue
		}

		// skip 总是作用在 reference 上；剩余的长度差再按截断对齐。
		p, err := m.align(ctx, local, cand, 0, skip)
		if err != nil {
			return domain.ReconciledPair{}, false, err
		}
		p.Action = domain.ActionSkipOffset
		p.OffsetSamples = skip
		p.TimeDiffSec = dt
		return p, true, nil
	}
	return domain.ReconciledPair{}, false, nil
}

// align 先按 skip 去掉前导样本，再把两侧截到相同长度；每侧至多写一次文件。
func (m *Matcher) align(ctx context.Context, local, ref domain.TimeSeriesRecord, localSkip, refSkip int) (domain.ReconciledPair, error) {
	n := min(local.SampleCount-localSkip, ref.SampleCount-refSkip)

	action := domain.ActionDirect
	switch {
	case local.SampleCount-localSkip > n:
		action = domain.ActionResizeLocal
	case ref.SampleCount-refSkip > n:
		action = domain.ActionResizeReference
	}

	newLocal, err := m.resize(ctx, local, domain.Window{Skip: localSkip, Length: n}, "local")
	if err != nil {
		return domain.ReconciledPair{}, err
	}
	newRef, err := m.resize(ctx, ref, domain.Window{Skip: refSkip, Length: n}, "reference")
	if err != nil {
		return domain.ReconciledPair{}, err
	}

	return domain.ReconciledPair{
		Local:       newLocal,
		Reference:   &newRef,
		Action:      action,
		SampleCount: n,
	}, nil
}

func (m *Matcher) resize(ctx context.Context, rec domain.TimeSeriesRecord, w domain.Window, role string) (domain.TimeSeriesRecord, error) {
	if w.Skip == 0 && w.Length == rec.SampleCount {
		return rec, nil
	}
	path, err := m.Store.ResizeAndRewrite(ctx, rec.Path, w)
	if err != nil {
		return domain.TimeSeriesRecord{}, fmt.Errorf("resize %s 失败：%w", rec.Name, err)
	}

	out := rec
	out.Path = path
	out.Name = filepath.Base(path)
	out.SampleCount = w.Length
	out.Skip = rec.Skip + w.Skip
	if m.Seq != nil {
		s, err := m.Seq.Assign(ctx, path)
		if err != nil {
			return domain.TimeSeriesRecord{}, fmt.Errorf("登记 %s 失败：%w", out.Name, err)
		}
		out.Seq = s
	}

	m.logger().Info("resized time series",
		zap.String("role", role),
		zap.String("from", rec.Name),
		zap.String("to", out.Name),
		zap.Int("skip", w.Skip),
		zap.Int("length", w.Length))
	return out, nil
}

// SortBySamplingRate 按采样率稳定排序，并重新分配 1-based FileNo。
func SortBySamplingRate(pairs []domain.ReconciledPair) []domain.ReconciledPair {
	out := make([]domain.ReconciledPair, len(pairs))
	copy(out, pairs)
	sort.SliceStable(out, func(i, j int) bool {
		return rateOf(out[i].Local) < rateOf(out[j].Local)
	})
	for i := range out {
		out[i].FileNo = i + 1
	}
	return out
}

func rateOf(r domain.TimeSeriesRecord) int {
	if r.SamplingRate > 0 {
		return r.SamplingRate
	}
	v, _ := strconv.Atoi(r.RateToken)
	return v
}

func sortPool(pool []domain.ReferenceCandidate) {
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Seq > pool[j].Seq })
}

func inPool(pool []domain.ReferenceCandidate, path string) bool {
	for _, c := range pool {
		if c.Path == path {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (m *Matcher) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}
