package domain

import "strings"

// Tag 是张量位置标识：zxx/zxy/zyx/zyy（阻抗）与 tzx/tzy（倾子）。
type Tag string

const (
	TagZxx Tag = "zxx"
	TagZxy Tag = "zxy"
	TagZyx Tag = "zyx"
	TagZyy Tag = "zyy"
	TagTzx Tag = "tzx"
	TagTzy Tag = "tzy"
)

// ImpedanceTags / TipperTags 的顺序即“并列时的优先顺序”。
var (
	ImpedanceTags = []Tag{TagZxx, TagZxy, TagZyx, TagZyy}
	TipperTags    = []Tag{TagTzx, TagTzy}
)

// ParseTag 把任意大小写的分量名规范化；未知分量 ok=false。
func ParseTag(s string) (Tag, bool) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TagZxx, TagZxy, TagZyx, TagZyy, TagTzx, TagTzy:
		return t, true
	default:
		return "", false
	}
}

func (t Tag) IsImpedance() bool { return strings.HasPrefix(string(t), "z") }
func (t Tag) IsTipper() bool    { return strings.HasPrefix(string(t), "t") }

// Index 返回 (row, col)。
func (t Tag) Index() (int, int) {
	switch t {
	case TagZxx, TagTzx:
		return 0, 0
	case TagZxy, TagTzy:
		return 0, 1
	case TagZyx:
		return 1, 0
	case TagZyy:
		return 1, 1
	default:
		return -1, -1
	}
}

// Reversed 表示反序交叉项（yx），重建后需要取反。
func (t Tag) Reversed() bool {
	return strings.Index(string(t), "yx") > 0
}

// FrequencyMeasurement 是某个张量位置在某个频点上的一行测量。
type FrequencyMeasurement struct {
	Frequency    float64
	Magnitude    float64
	Phase        float64 // 毫弧度
	PercentError float64
	Coherence    float64
	Stack        int

	Skip       int
	EMag       float64
	BMag       float64
	ARes       float64
	PhaseError float64
	FCTry      int
}
