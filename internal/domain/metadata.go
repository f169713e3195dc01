package domain

import "strings"

// MetaField 是缓存文件头里的一行：KEY -> 逗号分隔的多个值。
type MetaField struct {
	Key    string
	Values []string
}

// Metadata 是有序的 KEY -> 值列表映射。
//
// 约束：
// - 保持首次写入顺序（回写文件头时顺序稳定）
// - KEY 比较不区分大小写，但保留首次出现的原始写法
type Metadata struct {
	fields []MetaField
	index  map[string]int
}

func NewMetadata() *Metadata {
	return &Metadata{index: map[string]int{}}
}

func normKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

// Set 覆盖（或追加）一个字段。
func (m *Metadata) Set(key string, values ...string) {
	if m.index == nil {
		m.index = map[string]int{}
	}
	vs := append([]string(nil), values...)
	nk := normKey(key)
	if i, ok := m.index[nk]; ok {
		m.fields[i].Values = vs
		return
	}
	m.index[nk] = len(m.fields)
	m.fields = append(m.fields, MetaField{Key: strings.TrimSpace(key), Values: vs})
}

func (m *Metadata) Get(key string) ([]string, bool) {
	if m == nil || m.index == nil {
		return nil, false
	}
	i, ok := m.index[normKey(key)]
	if !ok {
		return nil, false
	}
	return m.fields[i].Values, true
}

// First 返回字段的第一个值；字段缺失或为空时 ok=false。
func (m *Metadata) First(key string) (string, bool) {
	vs, ok := m.Get(key)
	if !ok || len(vs) == 0 {
		return "", false
	}
	return strings.TrimSpace(vs[0]), true
}

// Fields 返回按写入顺序排列的字段拷贝。
func (m *Metadata) Fields() []MetaField {
	if m == nil {
		return nil
	}
	out := make([]MetaField, len(m.fields))
	for i, f := range m.fields {
		out[i] = MetaField{Key: f.Key, Values: append([]string(nil), f.Values...)}
	}
	return out
}

func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m == nil {
		return c
	}
	for _, f := range m.fields {
		c.Set(f.Key, f.Values...)
	}
	return c
}
