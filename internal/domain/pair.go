package domain

// ReconcileAction 描述 matcher 对一条本地记录做了什么。
type ReconcileAction string

const (
	ActionDirect          ReconcileAction = "direct"
	ActionResizeReference ReconcileAction = "resize_reference"
	ActionResizeLocal     ReconcileAction = "resize_local"
	ActionSkipOffset      ReconcileAction = "skip_offset"
	ActionUnmatched       ReconcileAction = "unmatched"
)

// ReconciledPair 是一条本地记录的配对结果。
//
// 不变量：Reference != nil 时 Local.SampleCount == Reference.SampleCount == SampleCount；
// OffsetSamples >= 0。
type ReconciledPair struct {
	Local     TimeSeriesRecord
	Reference *TimeSeriesRecord

	Action        ReconcileAction
	OffsetSamples int
	TimeDiffSec   int
	SampleCount   int

	// FileNo 是排序后重新分配的 1-based 序号（对应 cfg 中的 File#）。
	FileNo int
}

func (p ReconciledPair) Matched() bool { return p.Reference != nil }
