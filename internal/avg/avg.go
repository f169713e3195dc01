// Package avg 读取 MTEdit 输出的 .avg 测量文件。
package avg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/domain"
)

// Columns 是数据行的固定列。
var Columns = []string{
	"Skp", "Freq", "E.mag", "B.mag", "Z.mag", "Z.phz",
	"ARes.mag", "ARes.%err", "Z.perr", "Coher", "FC.NUse", "FC.NTry",
}

// File 是一个 .avg 文件的内容。
type File struct {
	Path string
	// Header 是非分量标记的 $key=value 行，按出现顺序。
	Header []domain.Field
	// Order 是分量标记出现的顺序。
	Order      []domain.Tag
	Components map[domain.Tag][]domain.FrequencyMeasurement
}

// Get 返回 Header 中 key 的值。
func (f File) Get(key string) (string, bool) {
	for _, h := range f.Header {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// ReadFile 读取 path；不存在时返回 not_found。
func ReadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, domain.NotFound(path, err)
		}
		return File{}, err
	}
	defer fh.Close()
	f, err := Read(fh)
	if err != nil {
		return File{}, domain.ParseFailed(path, err)
	}
	f.Path = path
	return f, nil
}

// Read 解析 .avg 内容。
//
// - "$key=value"：value 是分量名（zxy/tzx 等）时开始一个新分量，否则记入 Header
// - 以 'S' 开头的行是列标题，跳过
// - 其余非空行是 12 列数据，归入当前分量
func Read(r io.Reader) (File, error) {
	f := File{Components: map[domain.Tag][]domain.FrequencyMeasurement{}}
	var cur domain.Tag

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		switch {
		case len(line) <= 2:
			continue
		case strings.HasPrefix(line, "$") && strings.Contains(line, "="):
			key, val, _ := strings.Cut(line[1:], "=")
			key, val = strings.TrimSpace(key), strings.TrimSpace(val)
			if tag, ok := domain.ParseTag(val); ok {
				cur = tag
				if _, seen := f.Components[tag]; !seen {
					f.Order = append(f.Order, tag)
					f.Components[tag] = nil
				}
				continue
			}
			f.Header = append(f.Header, domain.Field{Key: key, Value: val})
		case strings.HasPrefix(line, "S"):
			continue
		default:
			if cur == "" {
				return File{}, fmt.Errorf("第 %d 行：数据行出现在分量标记之前", lineNo)
			}
			m, err := parseRow(line)
			if err != nil {
				return File{}, fmt.Errorf("第 %d 行：%w", lineNo, err)
			}
			f.Components[cur] = append(f.Components[cur], m)
		}
	}
	if err := sc.Err(); err != nil {
		return File{}, err
	}
	return f, nil
}

func parseRow(line string) (domain.FrequencyMeasurement, error) {
	parts := strings.Split(line, ",")
	if len(parts) < len(Columns) {
		return domain.FrequencyMeasurement{}, fmt.Errorf("期望 %d 列，实际 %d 列", len(Columns), len(parts))
	}
	vals := make([]float64, len(Columns))
	for i := range Columns {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return domain.FrequencyMeasurement{}, fmt.Errorf("%s 不是数字：%q", Columns[i], parts[i])
		}
		vals[i] = v
	}
	return domain.FrequencyMeasurement{
		Skip:         int(vals[0]),
		Frequency:    vals[1],
		EMag:         vals[2],
		BMag:         vals[3],
		Magnitude:    vals[4],
		Phase:        vals[5],
		ARes:         vals[6],
		PercentError: vals[7],
		PhaseError:   vals[8],
		Coherence:    vals[9],
		Stack:        int(vals[10]),
		FCTry:        int(vals[11]),
	}, nil
}
