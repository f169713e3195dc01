package mtft

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/app/setup"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
)

// 时间序列表的固定列（其后是 ChnGain1..N）。
var tsColumns = []string{
	"File#", "Setup", "SkipWgt", "LocalFile", "RemoteFile",
	"LocalBlock", "RemoteBlock", "LocalByte", "RemoteByte",
	"Date", "Time0", "T0Offset", "ADFrequency", "NLocalPnt", "NRemotePnt",
}

// LocalByte 是缓存文件数据区的固定起始字节。
const LocalByte = 65

// TSRow 是时间序列表中的一行。
type TSRow struct {
	FileNo      int
	Setup       int
	SkipWgt     int
	LocalFile   string
	RemoteFile  string
	LocalBlock  int
	RemoteBlock string
	LocalByte   int
	RemoteByte  string
	Date        string
	Time0       string
	T0Offset    string
	ADFrequency int
	NLocalPnt   int
	NRemotePnt  string
	Gains       []string
}

// Config 是一份完整的 mtft24.cfg。
type Config struct {
	// Params 包含处理参数以及 Setup.Number / TS.* 汇总字段，按写出顺序。
	Params Params
	Setups []domain.Setup
	Rows   []TSRow
}

// Build 由排好序的配对结果与 setup 生成配置。
// pairs 必须已按采样率排序并分配 FileNo。
func Build(pairs []domain.ReconciledPair, setups []domain.Setup, params Params) Config {
	if params == nil {
		params = DefaultParams()
	}
	params = append(Params(nil), params...)

	bands := map[int]bool{}
	rows := make([]TSRow, 0, len(pairs))
	for _, p := range pairs {
		l := p.Local
		bands[l.SamplingRate] = true

		row := TSRow{
			FileNo:      p.FileNo,
			Setup:       setup.SetupFor(setups, l),
			SkipWgt:     1,
			LocalFile:   l.Name,
			LocalBlock:  l.ID - 1,
			LocalByte:   LocalByte,
			Date:        l.Date,
			Time0:       "0",
			T0Offset:    "0",
			ADFrequency: l.SamplingRate,
			NLocalPnt:   l.SampleCount,
		}
		gains := len(l.Components)
		if p.Reference != nil {
			row.RemoteFile = p.Reference.Name
			row.RemoteBlock = strconv.Itoa(row.LocalBlock)
			row.RemoteByte = strconv.Itoa(LocalByte)
			row.NRemotePnt = strconv.Itoa(p.Reference.SampleCount)
			gains += 2
		}
		row.Gains = make([]string, gains)
		for i := range row.Gains {
			row.Gains[i] = "1"
		}
		rows = append(rows, row)
	}

	freqs := make([]int, 0, len(bands))
	for f := range bands {
		freqs = append(freqs, f)
	}
	sort.Ints(freqs)
	zeros := make([]int, len(freqs))

	params = params.Set("Setup.Number", strconv.Itoa(len(setups)))
	params = params.Set("TS.Number", strconv.Itoa(len(rows)))
	params = params.Set("TS.FrqBand", joinInts(freqs))
	params = params.Set("TS.T0Offset", joinInts(zeros))
	params = params.Set("TS.T0Error", joinInts(zeros))

	return Config{Params: params, Setups: setups, Rows: rows}
}

// GainColumns 返回时间序列表需要的 ChnGain 列数（取各 setup 最大值）。
func (c Config) GainColumns() int {
	n := 0
	for _, s := range c.Setups {
		n = max(n, s.GainColumns)
	}
	for _, r := range c.Rows {
		n = max(n, len(r.Gains))
	}
	return n
}

// Header 返回时间序列表头。
func (c Config) Header() []string {
	h := append([]string(nil), tsColumns...)
	for i := 1; i <= c.GainColumns(); i++ {
		h = append(h, fmt.Sprintf("ChnGain%d", i))
	}
	return h
}

// Write 按 mtft24.cfg 格式写出。
func Write(w io.Writer, c Config) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("\n")
	for _, f := range c.Params {
		fmt.Fprintf(bw, "$%s=%s\n", f.Key, f.Value)
		if f.Key == lastProcessingKey {
			bw.WriteString("\n")
		}
	}
	bw.WriteString("\n")

	for _, s := range c.Setups {
		for _, f := range setupFields(s) {
			fmt.Fprintf(bw, "$%s=%s\n", f.Key, f.Value)
		}
		bw.WriteString("\n")
	}

	cols := c.GainColumns()
	bw.WriteString(strings.Join(c.Header(), ",") + "\n")
	for _, r := range c.Rows {
		bw.WriteString(strings.Join(rowValues(r, cols), ",") + "\n")
	}
	return bw.Flush()
}

// WriteFile 原子写出到 path（已存在则替换）。
func WriteFile(path string, c Config) error {
	return fsx.WriteAtomic(filepath.Dir(path), filepath.Base(path), true, func(w io.Writer) error {
		return Write(w, c)
	})
}

func setupFields(s domain.Setup) []domain.Field {
	var cmp, ids, lens, gains []string
	for _, ch := range s.Channels {
		cmp = append(cmp, ch.Component)
		ids = append(ids, ch.ID)
		lens = append(lens, ch.Length)
		gains = append(gains, ch.Gain)
	}
	return []domain.Field{
		{Key: "Setup.ID", Value: strconv.Itoa(s.ID)},
		{Key: "Setup.Use", Value: s.Use},
		{Key: "Unit.Length", Value: s.UnitLength},
		{Key: "Chn.Cmp", Value: strings.Join(cmp, ",")},
		{Key: "Chn.ID", Value: strings.Join(ids, ",")},
		{Key: "Chn.Length", Value: strings.Join(lens, ",")},
		{Key: "Chn.Gain", Value: strings.Join(gains, ",")},
		{Key: "Ant.FrqMin", Value: joinFloats(s.FreqMin)},
		{Key: "Ant.FrqMax", Value: joinFloats(s.FreqMax)},
		{Key: "Rx.HPR", Value: joinInts(s.RxHPR)},
		{Key: "Remote.Component", Value: s.RemoteComponent},
		{Key: "Remote.Rotation", Value: strconv.Itoa(s.RemoteRotation)},
		{Key: "Remote.Path", Value: s.RemotePath},
	}
}

func rowValues(r TSRow, cols int) []string {
	out := []string{
		strconv.Itoa(r.FileNo),
		strconv.Itoa(r.Setup),
		strconv.Itoa(r.SkipWgt),
		r.LocalFile,
		r.RemoteFile,
		strconv.Itoa(r.LocalBlock),
		r.RemoteBlock,
		strconv.Itoa(r.LocalByte),
		r.RemoteByte,
		r.Date,
		r.Time0,
		r.T0Offset,
		strconv.Itoa(r.ADFrequency),
		strconv.Itoa(r.NLocalPnt),
		r.NRemotePnt,
	}
	for i := 0; i < cols; i++ {
		g := ""
		if i < len(r.Gains) {
			g = r.Gains[i]
		}
		out = append(out, g)
	}
	return out
}

// ReadFile 读取 path；文件不存在时返回 not_found。
func ReadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, domain.NotFound(path, err)
		}
		return Config{}, err
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return Config{}, domain.ParseFailed(path, err)
	}
	return c, nil
}

// Read 解析 mtft24.cfg。
func Read(r io.Reader) (Config, error) {
	var c Config
	var cur *domain.Setup
	flush := func() {
		if cur != nil {
			c.Setups = append(c.Setups, *cur)
			cur = nil
		}
	}
	var header []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "$"):
			key, val, ok := strings.Cut(line[1:], "=")
			if !ok {
				return Config{}, fmt.Errorf("第 %d 行缺少 '='", lineNo)
			}
			key = strings.TrimSpace(key)
			if key == "Setup.ID" {
				flush()
				cur = &domain.Setup{}
			}
			if cur != nil {
				if err := setSetupField(cur, key, val); err != nil {
					return Config{}, fmt.Errorf("第 %d 行：%w", lineNo, err)
				}
				continue
			}
			c.Params = c.Params.Set(key, val)
		case strings.HasPrefix(line, "File#"):
			flush()
			header = splitList(line)
		case strings.Contains(strings.ToLower(line), domain.CacheExt):
			if header == nil {
				return Config{}, fmt.Errorf("第 %d 行：时间序列行出现在表头之前", lineNo)
			}
			row, err := parseRow(header, splitList(line))
			if err != nil {
				return Config{}, fmt.Errorf("第 %d 行：%w", lineNo, err)
			}
			c.Rows = append(c.Rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}
	flush()
	return c, nil
}

func setSetupField(s *domain.Setup, key, val string) error {
	var err error
	switch key {
	case "Setup.ID":
		s.ID, err = strconv.Atoi(val)
	case "Setup.Use":
		s.Use = val
	case "Unit.Length":
		s.UnitLength = val
	case "Chn.Cmp", "Chn.ID", "Chn.Length", "Chn.Gain":
		vs := splitList(val)
		for len(s.Channels) < len(vs) {
			s.Channels = append(s.Channels, domain.Channel{})
		}
		for i, v := range vs {
			switch key {
			case "Chn.Cmp":
				s.Channels[i].Component = v
			case "Chn.ID":
				s.Channels[i].ID = v
			case "Chn.Length":
				s.Channels[i].Length = v
			case "Chn.Gain":
				s.Channels[i].Gain = v
			}
		}
		if key == "Chn.Cmp" {
			s.GainColumns = len(vs)
		}
	case "Ant.FrqMin":
		s.FreqMin, err = strconv.ParseFloat(val, 64)
	case "Ant.FrqMax":
		s.FreqMax, err = strconv.ParseFloat(val, 64)
	case "Rx.HPR":
		s.RxHPR = nil
		for _, v := range splitList(val) {
			n, e := strconv.Atoi(v)
			if e != nil {
				return fmt.Errorf("Rx.HPR 不是整数：%q", v)
			}
			s.RxHPR = append(s.RxHPR, n)
		}
	case "Remote.Component":
		s.RemoteComponent = val
	case "Remote.Rotation":
		s.RemoteRotation, err = strconv.Atoi(val)
	case "Remote.Path":
		s.RemotePath = val
	}
	if err != nil {
		return fmt.Errorf("%s 解析失败：%w", key, err)
	}
	return nil
}

func parseRow(header, vals []string) (TSRow, error) {
	var r TSRow
	atoi := func(col, v string) (int, error) {
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s 不是整数：%q", col, v)
		}
		return n, nil
	}
	for i, col := range header {
		v := ""
		if i < len(vals) {
			v = vals[i]
		}
		var err error
		switch col {
		case "File#":
			r.FileNo, err = atoi(col, v)
		case "Setup":
			r.Setup, err = atoi(col, v)
		case "SkipWgt":
			r.SkipWgt, err = atoi(col, v)
		case "LocalFile":
			r.LocalFile = v
		case "RemoteFile":
			r.RemoteFile = v
		case "LocalBlock":
			r.LocalBlock, err = atoi(col, v)
		case "RemoteBlock":
			r.RemoteBlock = v
		case "LocalByte":
			r.LocalByte, err = atoi(col, v)
		case "RemoteByte":
			r.RemoteByte = v
		case "Date":
			r.Date = v
		case "Time0":
			r.Time0 = v
		case "T0Offset":
			r.T0Offset = v
		case "ADFrequency":
			r.ADFrequency, err = atoi(col, v)
		case "NLocalPnt":
			r.NLocalPnt, err = atoi(col, v)
		case "NRemotePnt":
			r.NRemotePnt = v
		default:
			if strings.HasPrefix(col, "ChnGain") && v != "" {
				r.Gains = append(r.Gains, v)
			}
		}
		if err != nil {
			return TSRow{}, err
		}
	}
	return r, nil
}
