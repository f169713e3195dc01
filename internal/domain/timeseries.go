package domain

import "context"

// CacheExt 是缓存（时间序列）文件的固定扩展名。
const CacheExt = ".cac"

// 缓存文件头里用到的 KEY。
const (
	MetaNPnt     = "TS.NPNT"
	MetaADFreq   = "TS.ADFREQ"
	MetaSkip     = "TS.SKIP"
	MetaChNumber = "CH.NUMBER"
	MetaChCmp    = "CH.CMP"
	MetaChGain   = "CH.GAIN"
	MetaDate     = "DATA.DATE0"
	MetaDateOld  = "DATE0"
)

// TimeSeriesRecord 描述一次扫描得到的缓存文件（只读文件头，不读样本）。
//
// 不变量：
// - Path 必须是 clean + absolute
// - Station/StartToken/RateToken 直接取自文件名 token，逐字节保留
// - Seq 是显式的创建序号：越大越新；候选扫描顺序只依赖它，不依赖目录遍历顺序
type TimeSeriesRecord struct {
	ID   int
	Name string // 文件名（含扩展名）
	Path string

	Station    string
	StartToken string // HHMMSS
	RateToken  string

	SamplingRate int
	SampleCount  int
	Skip         int // 相对谱系原始文件累计裁掉的前导样本数

	Date       string
	Components []string
	Gains      []string

	Seq int64
}

// ReferenceCandidate 与 TimeSeriesRecord 同构，只是来自 remote 候选池。
type ReferenceCandidate = TimeSeriesRecord

// Series 是通道交织的样本矩阵：Rows() 行 × Channels 列。
type Series struct {
	Channels int
	Samples  []int32
}

func (s Series) Rows() int {
	if s.Channels <= 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Window 描述一次 resize：跳过前 Skip 行，保留 Length 行。
type Window struct {
	Skip   int
	Length int
}

// CacheStore 是缓存文件存储（外部协作者）。
//
// ResizeAndRewrite 必须写出一个新文件名（不覆盖原文件），
// 且当窗口与当前内容一致时不做任何写入，直接返回原路径。
type CacheStore interface {
	List(ctx context.Context, dir string) ([]TimeSeriesRecord, error)
	ReadMetadata(ctx context.Context, path string) (*Metadata, error)
	ReadSeries(ctx context.Context, path string) (Series, error)
	ResizeAndRewrite(ctx context.Context, path string, w Window) (string, error)
}

// Sequencer 为缓存文件分配稳定、单调递增的创建序号。
type Sequencer interface {
	Assign(ctx context.Context, name string) (int64, error)
}
