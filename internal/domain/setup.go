package domain

// 通道分量名（大小写按 cfg 约定）。
const (
	CompHx  = "Hx"
	CompHy  = "Hy"
	CompHz  = "Hz"
	CompEx  = "Ex"
	CompEy  = "Ey"
	CompHxr = "Hxr"
	CompHyr = "Hyr"
)

// Channel 是一个通道的配置（名称 + id/gain/length）。
type Channel struct {
	Component string
	ID        string
	Gain      string
	Length    string
}

// Setup 是按“分量个数”聚合的一组通道配置。
type Setup struct {
	ID         int
	Use        string
	UnitLength string
	Channels   []Channel

	FreqMin float64
	FreqMax float64
	RxHPR   []int

	RemoteComponent string
	RemoteRotation  int
	RemotePath      string

	// GainColumns 是该 setup 在时间序列表里需要的 ChnGainN 列数。
	GainColumns int
}

// Channel 按分量名查找通道；找不到时 ok=false。
func (s Setup) Channel(comp string) (Channel, bool) {
	for _, c := range s.Channels {
		if c.Component == comp {
			return c, true
		}
	}
	return Channel{}, false
}

func (s Setup) Components() []string {
	out := make([]string, 0, len(s.Channels))
	for _, c := range s.Channels {
		out = append(out, c.Component)
	}
	return out
}

// SurveyLookup 提供测站调查信息（外部协作者）。
// 返回的 map 以小写字段名为键，例如 hx / e_xaxis_length / lat。
type SurveyLookup interface {
	Lookup(station string) (map[string]string, bool)
}
