package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusMatched   = "matched"
	StatusResized   = "resized"
	StatusProcessed = "processed"
	StatusUnmatched = "unmatched"
	StatusFailed    = "failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID   string `json:"run_id"`
	Command string `json:"command"`
	Path    string `json:"path"`
	DryRun  bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary     ReportSummary `json:"summary"`
	Items       []ItemResult  `json:"items"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
	Outputs     []string      `json:"outputs"`
}

type ReportSummary struct {
	Matched   int `json:"matched"`
	Resized   int `json:"resized"`
	Processed int `json:"processed"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

// ItemResult 对应一个输入文件（缓存文件或 .avg 文件）。
type ItemResult struct {
	File      string `json:"file"`
	Station   string `json:"station"`
	RateToken string `json:"rate_token"`

	Status    string `json:"status"`
	Action    string `json:"action"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	RemoteFile    string `json:"remote_file"`
	OffsetSamples int    `json:"offset_samples"`
	TimeDiffSec   int    `json:"time_diff_sec"`
	SampleCount   int    `json:"sample_count"`
}

// Diagnostic 是不中断批处理的可报告问题（no_match / missing_field 等）。
type Diagnostic struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
	Msg     string `json:"msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 file 字典序；file=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].File
		b := r.Items[j].File
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusMatched:
			s.Matched++
		case StatusResized:
			s.Resized++
		case StatusProcessed:
			s.Processed++
		case StatusUnmatched:
			s.Unmatched++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s

	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Diagnostics == nil {
		r.Diagnostics = []Diagnostic{}
	}
	if r.Outputs == nil {
		r.Outputs = []string{}
	}
}

// Clean 表示本次运行没有 unmatched/failed。
func (r RunReport) Clean() bool {
	return r.Summary.Failed == 0 && r.Summary.Unmatched == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
