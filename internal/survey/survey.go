// Package survey 读取测站调查信息（survey.yaml）。
//
// 文件格式：顶层键是测站名，值是字段表，例如
//
//	MT01:
//	  hx: 2314
//	  hz: "*"
//	  e_xaxis_length: 100
//	  lat: 40.1
package survey

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/zmt/internal/domain"
)

var _ domain.SurveyLookup = (*Table)(nil)

// Table 以大写测站名为键；字段名小写，值保留原始文本。
type Table struct {
	stations map[string]map[string]string
}

// Load 读取 path；文件不存在返回 not_found，内容非法返回 parse_failed。
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NotFound(path, err)
		}
		return nil, err
	}
	t, err := Parse(b)
	if err != nil {
		return nil, domain.ParseFailed(path, err)
	}
	return t, nil
}

// Parse 解析 YAML 内容。
func Parse(b []byte) (*Table, error) {
	var raw map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	t := &Table{stations: make(map[string]map[string]string, len(raw))}
	for st, fields := range raw {
		m := make(map[string]string, len(fields))
		for k, n := range fields {
			m[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(n.Value)
		}
		t.stations[strings.ToUpper(strings.TrimSpace(st))] = m
	}
	return t, nil
}

// Lookup 按测站名（不区分大小写）查找字段表；返回拷贝。
func (t *Table) Lookup(station string) (map[string]string, bool) {
	if t == nil {
		return nil, false
	}
	m, ok := t.stations[strings.ToUpper(strings.TrimSpace(station))]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// Stations 返回已知测站数。
func (t *Table) Stations() int {
	if t == nil {
		return 0
	}
	return len(t.stations)
}
