package run

import (
	"time"

	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：CLI 的 keepalive ticker 与事件可能来自不同 goroutine。
type Observer interface {
	// OnStart 在流程开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个输入文件处理完成时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

// 阶段名（OnPhaseDone 的 name）。
const (
	PhaseScan      = "scan"
	PhaseReconcile = "reconcile"
	PhaseSetup     = "setup"
	PhaseWrite     = "write"
	PhaseRead      = "read"
	PhaseAssemble  = "assemble"
)

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                        {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)     {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}

func observerOrNop(obs Observer) Observer {
	if obs == nil {
		return nopObserver{}
	}
	return obs
}
