// Package setup 把时间序列按分量个数聚合为 setup，并叠加 remote reference 与测站调查信息。
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/domain"
)

// DefaultChannels 是默认通道模板（分量 -> id/gain/length）。
func DefaultChannels() []domain.Channel {
	return []domain.Channel{
		{Component: domain.CompHx, ID: "2314", Gain: "1", Length: "100"},
		{Component: domain.CompHy, ID: "2324", Gain: "1", Length: "100"},
		{Component: domain.CompHz, ID: "2334", Gain: "1", Length: "100"},
		{Component: domain.CompEx, ID: "4", Gain: "1", Length: "100"},
		{Component: domain.CompEy, ID: "5", Gain: "1", Length: "100"},
	}
}

// RemoteChannels 是 remote reference 追加的两个合成通道。
func RemoteChannels() []domain.Channel {
	return []domain.Channel{
		{Component: domain.CompHxr, ID: "2284", Gain: "1", Length: "100"},
		{Component: domain.CompHyr, ID: "2274", Gain: "1", Length: "100"},
	}
}

// DefaultComponents 返回模板里的分量名（编目时用于过滤 CH.CMP）。
func DefaultComponents() []string {
	chs := DefaultChannels()
	out := make([]string, 0, len(chs))
	for _, c := range chs {
		out = append(out, c.Component)
	}
	return out
}

// Options 是每个 setup 共享的天线/接收机参数。
type Options struct {
	Channels        []domain.Channel
	FreqMin         float64
	FreqMax         float64
	RxHPR           []int
	RemoteComponent string
	RemoteRotation  int
}

func DefaultOptions() Options {
	return Options{
		Channels:        DefaultChannels(),
		FreqMin:         7.31e-4,
		FreqMax:         10240,
		RxHPR:           []int{90, 0, 0},
		RemoteComponent: "Hx,Hy",
		RemoteRotation:  0,
	}
}

// Group 按“分量个数”把记录聚合为 setup。
//
// - 每个不同的分量个数产生一个 setup，按首次出现顺序，ID 从 1 开始
// - 通道取自模板；模板里没有的分量按位置编号（1..n）兜底
func Group(records []domain.TimeSeriesRecord, opts Options) []domain.Setup {
	if opts.Channels == nil {
		opts.Channels = DefaultChannels()
	}
	index := make(map[int]int, 4)
	setups := make([]domain.Setup, 0, 4)

	for _, r := range records {
		n := len(r.Components)
		if _, ok := index[n]; ok {
			continue
		}
		index[n] = len(setups)
		setups = append(setups, domain.Setup{
			ID:              len(setups) + 1,
			Use:             "Yes",
			UnitLength:      "m",
			Channels:        channelsFor(r.Components, opts.Channels),
			FreqMin:         opts.FreqMin,
			FreqMax:         opts.FreqMax,
			RxHPR:           append([]int(nil), opts.RxHPR...),
			RemoteComponent: opts.RemoteComponent,
			RemoteRotation:  opts.RemoteRotation,
			GainColumns:     n,
		})
	}
	return setups
}

func channelsFor(comps []string, tpl []domain.Channel) []domain.Channel {
	out := make([]domain.Channel, 0, len(comps))
	for i, c := range comps {
		ch := domain.Channel{Component: c, ID: strconv.Itoa(i + 1), Gain: "1", Length: "100"}
		for _, t := range tpl {
			if strings.EqualFold(t.Component, c) {
				ch = t
				ch.Component = c
				break
			}
		}
		out = append(out, ch)
	}
	return out
}

// SetupFor 返回与记录分量个数对应的 setup ID；找不到时返回 0。
func SetupFor(setups []domain.Setup, r domain.TimeSeriesRecord) int {
	for _, s := range setups {
		if s.GainColumns-remoteColumns(s) == len(r.Components) {
			return s.ID
		}
	}
	return 0
}

func remoteColumns(s domain.Setup) int {
	if _, ok := s.Channel(domain.CompHxr); ok {
		return 2
	}
	return 0
}

// WithRemote 为每个 setup 追加 Hxr/Hyr 通道和两列增益；对同一个 setup 只生效一次。
// 不修改入参。
func WithRemote(setups []domain.Setup, remotePath string) []domain.Setup {
	out := clone(setups)
	if strings.TrimSpace(remotePath) == "" {
		return out
	}
	if !strings.HasSuffix(remotePath, string(os.PathSeparator)) {
		remotePath += string(os.PathSeparator)
	}
	for i := range out {
		out[i].RemotePath = remotePath
		if remoteColumns(out[i]) > 0 {
			continue
		}
		out[i].Channels = append(out[i].Channels, RemoteChannels()...)
		out[i].GainColumns += 2
	}
	return out
}

// ApplySurvey 用测站调查信息覆盖通道 id/length，返回新的 setup 列表与缺失字段诊断。
//
// 映射：hx/hy/hz -> Hx/Hy/Hz 的 ID（hz 含 '*' 时取 "3"），
// e_xaxis_length/e_yaxis_length -> Ex/Ey 的 Length，
// remote 测站的 hx/hy -> Hxr/Hyr 的 ID。
func ApplySurvey(setups []domain.Setup, lookup domain.SurveyLookup, station, rrStation string) ([]domain.Setup, []domain.Diagnostic) {
	out := clone(setups)
	if lookup == nil {
		return out, nil
	}
	var diags []domain.Diagnostic

	if info, ok := lookup.Lookup(station); ok {
		rules := []struct {
			key, comp string
			length    bool
		}{
			{"hx", domain.CompHx, false},
			{"hy", domain.CompHy, false},
			{"hz", domain.CompHz, false},
			{"e_xaxis_length", domain.CompEx, true},
			{"e_yaxis_length", domain.CompEy, true},
		}
		for _, r := range rules {
			v, ok := info[r.key]
			if !ok {
				diags = append(diags, missing(station, r.key))
				continue
			}
			if r.comp == domain.CompHz && strings.Contains(v, "*") {
				v = "3"
			}
			for i := range out {
				setChannel(&out[i], r.comp, v, r.length)
			}
		}
	} else {
		diags = append(diags, domain.Diagnostic{
			Code:    domain.ErrCodeMissingField,
			Subject: station,
			Msg:     "调查文件中找不到该测站，保留默认通道参数",
		})
	}

	if strings.TrimSpace(rrStation) == "" {
		return out, diags
	}
	info, ok := lookup.Lookup(rrStation)
	if !ok {
		diags = append(diags, domain.Diagnostic{
			Code:    domain.ErrCodeMissingField,
			Subject: rrStation,
			Msg:     "调查文件中找不到 remote 测站，保留默认通道参数",
		})
		return out, diags
	}
	for _, r := range []struct{ key, comp string }{{"hx", domain.CompHxr}, {"hy", domain.CompHyr}} {
		v, ok := info[r.key]
		if !ok {
			diags = append(diags, missing(rrStation, r.key))
			continue
		}
		for i := range out {
			setChannel(&out[i], r.comp, v, false)
		}
	}
	return out, diags
}

func setChannel(s *domain.Setup, comp, v string, length bool) {
	for i := range s.Channels {
		if s.Channels[i].Component != comp {
			continue
		}
		if length {
			s.Channels[i].Length = v
		} else {
			s.Channels[i].ID = v
		}
	}
}

func missing(station, key string) domain.Diagnostic {
	return domain.Diagnostic{
		Code:    domain.ErrCodeMissingField,
		Subject: station,
		Msg:     fmt.Sprintf("调查信息缺少 %s，使用默认值", key),
	}
}

func clone(setups []domain.Setup) []domain.Setup {
	out := make([]domain.Setup, len(setups))
	for i, s := range setups {
		s.Channels = append([]domain.Channel(nil), s.Channels...)
		s.RxHPR = append([]int(nil), s.RxHPR...)
		out[i] = s
	}
	return out
}
