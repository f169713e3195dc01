// Package mtft 读写 MTFT24 处理配置（mtft24.cfg）。
package mtft

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/domain"
)

// FileName 是配置文件的默认文件名。
const FileName = "mtft24.cfg"

// Params 是有序的 $KEY=VALUE 处理参数。
type Params []domain.Field

// Get 按 key 查找参数值。
func (p Params) Get(key string) (string, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set 覆盖同名参数；不存在时追加到末尾。返回新的 Params。
func (p Params) Set(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, domain.Field{Key: key, Value: value})
}

// 处理参数的最后一个 key；写出时它后面跟一个空行。
const lastProcessingKey = "MTFT.TSPlot.ChnRange"

// DefaultParams 返回 MTFT 处理参数默认值（顺序即写出顺序）。
func DefaultParams() Params {
	notch := make([]int, 0, 9)
	width := make([]int, 0, 9)
	for f := 60; f < 600; f += 60 {
		notch = append(notch, f)
		width = append(width, len(notch))
	}
	return Params{
		{Key: "MTFT.Version", Value: "1.10v"},
		{Key: "MTFT.MHAFreq", Value: "3"},
		{Key: "MTFT.WindowTaper", Value: "4 Pi Prolate"},
		{Key: "MTFT.WindowLength", Value: "64"},
		{Key: "MTFT.WindowOverlap", Value: "48"},
		{Key: "MTFT.NDecFlt", Value: "5"},
		{Key: "MTFT.PWFilter", Value: "Auto-Regression"},
		{Key: "MTFT.NPWCoef", Value: "5"},
		{Key: "MTFT.DeTrend", Value: "Yes"},
		{Key: "MTFT.T0OffsetMax", Value: "1.5"},
		{Key: "MTFT.Despike", Value: "Yes"},
		{Key: "MTFT.SpikePnt", Value: "1"},
		{Key: "MTFT.SpikeDev", Value: "4"},
		{Key: "MTFT.NotchFlt", Value: "Yes"},
		{Key: "MTFT.NotchFrq", Value: joinInts(notch)},
		{Key: "MTFT.NotchWidth", Value: joinInts(width)},
		{Key: "MTFT.StackFlt", Value: "No"},
		{Key: "MTFT.StackTaper", Value: "Yes"},
		{Key: "MTFT.StackFrq", Value: "60,1808,4960"},
		{Key: "MTFT.SysCal", Value: "Yes"},
		{Key: "MTFT.BandFrq", Value: "32,256,512,1024,2048,4096,32768"},
		{Key: "MTFT.BandFrqMin", Value: "0.000731,0.000731,0.000731,0.25,0.25,0.25,1"},
		{Key: "MTFT.BandFrqMax", Value: "10,80,160,320,640,1280,10240"},
		{Key: "MTFT.TSPlot.PntRange", Value: "4096"},
		{Key: lastProcessingKey, Value: "1000" + strings.Repeat(",1000", 17)},
	}
}

func joinInts(vs []int) string {
	ss := make([]string, len(vs))
	for i, v := range vs {
		ss[i] = strconv.Itoa(v)
	}
	return strings.Join(ss, ",")
}

func joinFloats(vs ...float64) string {
	ss := make([]string, len(vs))
	for i, v := range vs {
		ss[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(ss, ",")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
