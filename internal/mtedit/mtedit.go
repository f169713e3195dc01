// Package mtedit 读写 MTEdit 质量限制配置（mtedit.cfg）。
package mtedit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
)

const FileName = "mtedit.cfg"

// Column 是限制表中的一列：表头名、默认值与输出格式。
type Column struct {
	Name    string
	Default float64
	Format  string
}

// Columns 是限制表的列定义（顺序即文件列顺序；第一列是频率）。
var Columns = []Column{
	{"Frequency", 0, "%.4e"},
	{"AResXYmin", 1.0e-2, "%.4e"},
	{"AResXYmax", 1.0e6, "%.4e"},
	{"ZPhzXYmin", -3150, "%.1f"},
	{"ZPhzXYmax", 3150, "%.1f"},
	{"AResYXmin", 1.0e-2, "%.4e"},
	{"AResYXmax", 1.0e6, "%.4e"},
	{"ZPhzYXmin", -3150, "%.1f"},
	{"ZPhzYXmax", 3150, "%.1f"},
	{"CoherXYmin", 0.6, "%.3f"},
	{"CoherYXmin", 0.6, "%.3f"},
	{"CoherXYmax", 0.999, "%.3f"},
	{"CoherYXmax", 0.999, "%.3f"},
	{"ExMin", 0, "%.1g"},
	{"ExMax", 1.0e6, "%.4e"},
	{"EyMin", 0, "%.1g"},
	{"EyMax", 1.0e6, "%.4e"},
	{"HxMin", 0, "%.1g"},
	{"HxMax", 1.0e6, "%.4e"},
	{"HyMin", 0, "%.1g"},
	{"HyMax", 1.0e6, "%.4e"},
	{"NFC/Stack", 8, "%.0f"},
}

// DefaultFrequencies 是默认频点表（最后一行 0 是表尾标记）。
var DefaultFrequencies = []float64{
	7.3242e-04, 9.7656e-04, 1.2207e-03, 1.4648e-03, 1.9531e-03, 2.4414e-03,
	2.9297e-03, 3.9062e-03, 4.8828e-03, 5.8594e-03, 7.8125e-03, 9.7656e-03,
	1.1719e-02, 1.5625e-02, 1.9531e-02, 2.3438e-02, 3.1250e-02, 3.9062e-02,
	4.6875e-02, 6.2500e-02, 7.8125e-02, 9.3750e-02, 1.2500e-01, 1.5620e-01,
	1.8750e-01, 2.5000e-01, 3.1250e-01, 3.7500e-01, 5.0000e-01, 6.2500e-01,
	7.5000e-01, 1, 1.25, 1.5, 2, 2.5, 3, 4, 5, 6, 8, 10, 12, 16, 20, 24, 32,
	40, 48, 64, 80, 96, 128, 160, 192, 256, 320, 384, 512, 640, 768, 1024,
	1280, 1536, 2048, 2560, 3072, 4096, 5120, 6144, 8192, 10240, 0,
}

// 表格单元格宽度（右对齐）。
const cellWidth = 11

// Config 是一份 mtedit.cfg。Rows[i][j] 对应 Columns[j]。
type Config struct {
	Meta   []domain.Field
	Header []string
	Rows   [][]float64
}

// Default 返回默认配置；now 用于版本字段里的时间戳。
func Default(now time.Time) Config {
	c := Config{
		Meta: []domain.Field{
			{Key: "MTEdit:Version", Value: "3.10d applied on " + now.Format("Mon Jan _2 15:04:05 2006")},
			{Key: "Auto.PhaseFlip", Value: "No"},
			{Key: "PhaseSlope.Smooth", Value: "Minimal"},
			{Key: "PhaseSlope.toZMag", Value: "Yes"},
			{Key: "DPlus.Use", Value: "Yes"},
			{Key: "AutoSkip.onDPlus", Value: "No"},
			{Key: "AutoSkip.DPlusDev", Value: "500.0"},
		},
	}
	for _, col := range Columns {
		c.Header = append(c.Header, col.Name)
	}
	for _, f := range DefaultFrequencies {
		row := make([]float64, len(Columns))
		row[0] = f
		for j := 1; j < len(Columns); j++ {
			row[j] = Columns[j].Default
		}
		c.Rows = append(c.Rows, row)
	}
	return c
}

// Get 返回 Meta 中 key 的值。
func (c Config) Get(key string) (string, bool) {
	for _, f := range c.Meta {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Column 返回列 name 的全部取值；列不存在时 ok=false。
func (c Config) Column(name string) ([]float64, bool) {
	j := -1
	for i, h := range c.Header {
		if h == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, false
	}
	out := make([]float64, 0, len(c.Rows))
	for _, r := range c.Rows {
		if j < len(r) {
			out = append(out, r[j])
		}
	}
	return out, true
}

func formatFor(name string) string {
	for _, col := range Columns {
		if col.Name == name {
			return col.Format
		}
	}
	return "%g"
}

// Write 写出 mtedit.cfg：$ 元数据、右对齐表头、逐频点限制值。
func Write(w io.Writer, c Config) error {
	bw := bufio.NewWriter(w)
	for _, f := range c.Meta {
		fmt.Fprintf(bw, "$%s=%s\n", f.Key, f.Value)
	}
	cells := make([]string, len(c.Header))
	for i, h := range c.Header {
		cells[i] = fmt.Sprintf("%*s", cellWidth, h)
	}
	bw.WriteString(strings.Join(cells, ",") + "\n")

	for _, r := range c.Rows {
		cells = cells[:0]
		for j, h := range c.Header {
			v := 0.0
			if j < len(r) {
				v = r[j]
			}
			cells = append(cells, fmt.Sprintf("%*s", cellWidth, fmt.Sprintf(formatFor(h), v)))
		}
		bw.WriteString(strings.Join(cells, ",") + "\n")
	}
	return bw.Flush()
}

// WriteFile 写到 path；path 是目录时写到 <path>/mtedit.cfg。返回实际路径。
func WriteFile(path string, c Config) (string, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, FileName)
	}
	err := fsx.WriteAtomic(filepath.Dir(path), filepath.Base(path), true, func(w io.Writer) error {
		return Write(w, c)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ReadFile 读取 path；不存在时返回 not_found。
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

// Read 解析 mtedit.cfg。
func Read(r io.Reader) (Config, error) {
	var c Config
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "$"):
			key, val, _ := strings.Cut(line[1:], "=")
			c.Meta = append(c.Meta, domain.Field{Key: strings.TrimSpace(key), Value: strings.TrimSpace(val)})
		case strings.HasPrefix(line, "Frequency"):
			c.Header = nil
			for _, h := range strings.Split(line, ",") {
				c.Header = append(c.Header, strings.TrimSpace(h))
			}
		default:
			if c.Header == nil {
				return Config{}, fmt.Errorf("第 %d 行：数据行出现在表头之前", lineNo)
			}
			parts := strings.Split(line, ",")
			if len(parts) != len(c.Header) {
				return Config{}, fmt.Errorf("第 %d 行：期望 %d 列，实际 %d 列", lineNo, len(c.Header), len(parts))
			}
			row := make([]float64, len(parts))
			for j, p := range parts {
				v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return Config{}, fmt.Errorf("第 %d 行第 %d 列不是数字：%q", lineNo, j+1, p)
				}
				row[j] = v
			}
			c.Rows = append(c.Rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}
	return c, nil
}
