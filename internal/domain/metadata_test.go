package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_OrderAndCaseInsensitive(t *testing.T) {
	m := NewMetadata()
	m.Set("TS.NPNT", "4096")
	m.Set("CH.CMP", "hx", "hy", "ex")
	m.Set("ts.npnt", "2048")

	v, ok := m.First("Ts.Npnt")
	assert.True(t, ok)
	assert.Equal(t, "2048", v)

	fields := m.Fields()
	assert.Len(t, fields, 2)
	assert.Equal(t, "TS.NPNT", fields[0].Key)
	assert.Equal(t, []string{"hx", "hy", "ex"}, fields[1].Values)

	c := m.Clone()
	c.Set("TS.NPNT", "1")
	v, _ = m.First("TS.NPNT")
	assert.Equal(t, "2048", v, "Clone 不应影响原对象")
}

func TestTag_ReversedAndIndex(t *testing.T) {
	for _, tag := range append(append([]Tag{}, ImpedanceTags...), TipperTags...) {
		assert.Equal(t, tag == TagZyx, tag.Reversed(), string(tag))
	}
	i, j := TagZyx.Index()
	assert.Equal(t, [2]int{1, 0}, [2]int{i, j})
	i, j = TagTzy.Index()
	assert.Equal(t, [2]int{0, 1}, [2]int{i, j})
}
