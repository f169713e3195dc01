// Package tensor 把各分量的幅值/相位测量组装为阻抗与倾子复数张量。
package tensor

import (
	"fmt"
	"math"

	"github.com/John-Robertt/zmt/internal/domain"
)

// Batch 是一个测量文件里读出的各分量测量（分量 -> 按频点排列的行）。
type Batch map[domain.Tag][]domain.FrequencyMeasurement

const (
	impedanceErrScale = 0.005
	tipperErrScale    = 0.05
)

// Assembler 逐批累积测量。
//
// 不变量：
// - 频率轴是所有批次频点的并集，按首次出现顺序；只增长不重排
// - 同一频点（%.4g 键）永远写到同一个索引
// - 阻抗条目后写覆盖；倾子条目求和，结果按贡献次数取平均
type Assembler struct {
	z      axis
	tipper axis

	// tipN 与 tipper.t.Values 同布局，记录每个条目的贡献次数。
	tipN []int
}

type axis struct {
	t     domain.ComplexTensor
	index map[string]int
}

func New() *Assembler {
	return &Assembler{
		z:      axis{t: domain.NewComplexTensor(2, 2, 0), index: map[string]int{}},
		tipper: axis{t: domain.NewComplexTensor(1, 2, 0), index: map[string]int{}},
	}
}

// Assemble 依次加入 batches 并返回结果。
func Assemble(batches ...Batch) (z, tipper domain.ComplexTensor) {
	a := New()
	for _, b := range batches {
		a.Add(b)
	}
	return a.Result()
}

// FreqKey 是频点去重用的定精度键。
func FreqKey(f float64) string {
	return fmt.Sprintf("%.4g", f)
}

// ToComplex 由幅值与毫弧度相位重建复数；相位先折叠到 [0, π)。
func ToComplex(mag, phaseMrad float64) complex128 {
	p := math.Mod(phaseMrad/1000, math.Pi)
	if p < 0 {
		p += math.Pi
	}
	return complex(mag*math.Cos(p), mag*math.Sin(p))
}

// Add 合并一批测量。某个分量的测量列表为空时，对应位置保持为 0。
func (a *Assembler) Add(b Batch) {
	if zt := tagsOf(b, domain.ImpedanceTags); len(zt) > 0 {
		a.z.extend(b, zt)
		for _, tag := range zt {
			i, j := tag.Index()
			for _, m := range b[tag] {
				if m.Frequency == 0 {
					continue
				}
				k := a.z.index[FreqKey(m.Frequency)]
				v := ToComplex(m.Magnitude, m.Phase)
				if tag.Reversed() {
					v = -v
				}
				a.z.t.Set(k, i, j, v)
				a.z.t.SetErr(k, i, j, m.PercentError*impedanceErrScale)
			}
		}
	}

	if tt := tagsOf(b, domain.TipperTags); len(tt) > 0 {
		a.tipper.extend(b, tt)
		if n := len(a.tipper.t.Values); n > len(a.tipN) {
			a.tipN = append(a.tipN, make([]int, n-len(a.tipN))...)
		}
		// 同一批次内同一位置只算一份贡献（重复行以最后一行为准），均值按批次数计算。
		type contribution struct {
			v complex128
			e float64
		}
		batch := map[int]contribution{}
		for _, tag := range tt {
			i, j := tag.Index()
			for _, m := range b[tag] {
				if m.Frequency == 0 {
					continue
				}
				k := a.tipper.index[FreqKey(m.Frequency)]
				v := ToComplex(m.Magnitude, m.Phase)
				if tag.Reversed() {
					v = -v
				}
				off := (k*a.tipper.t.Rows+i)*a.tipper.t.Cols + j
				batch[off] = contribution{v: v, e: m.PercentError * tipperErrScale * cmplxAbs(v)}
			}
		}
		for off, c := range batch {
			a.tipper.t.Values[off] += c.v
			a.tipper.t.Err[off] += c.e
			a.tipN[off]++
		}
	}
}

// Result 返回当前累积结果的拷贝：倾子取平均，NaN/Inf 归零。
func (a *Assembler) Result() (z, tipper domain.ComplexTensor) {
	z = clone(a.z.t)
	z.Normalize()

	tipper = clone(a.tipper.t)
	for off, n := range a.tipN {
		if n > 1 {
			tipper.Values[off] /= complex(float64(n), 0)
			tipper.Err[off] /= float64(n)
		}
	}
	tipper.Normalize()
	return z, tipper
}

// extend 把本批新出现的频点追加到轴上：先取非零频点最多的分量，再按分量顺序补齐。
func (x *axis) extend(b Batch, tags []domain.Tag) {
	seed := tags[0]
	best := nonZero(b[seed])
	for _, tag := range tags[1:] {
		if n := nonZero(b[tag]); n > best {
			seed, best = tag, n
		}
	}

	var fresh []float64
	add := func(ms []domain.FrequencyMeasurement) {
		for _, m := range ms {
			if m.Frequency == 0 {
				continue
			}
			key := FreqKey(m.Frequency)
			if _, ok := x.index[key]; ok {
				continue
			}
			x.index[key] = x.t.Len() + len(fresh)
			fresh = append(fresh, m.Frequency)
		}
	}
	add(b[seed])
	for _, tag := range tags {
		if tag != seed {
			add(b[tag])
		}
	}
	if len(fresh) == 0 {
		return
	}

	old := x.t.Len()
	x.t.Grow(old + len(fresh))
	copy(x.t.Freq[old:], fresh)
}

func tagsOf(b Batch, order []domain.Tag) []domain.Tag {
	var out []domain.Tag
	for _, tag := range order {
		if len(b[tag]) > 0 {
			out = append(out, tag)
		}
	}
	return out
}

func nonZero(ms []domain.FrequencyMeasurement) int {
	n := 0
	for _, m := range ms {
		if m.Frequency != 0 {
			n++
		}
	}
	return n
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}

func clone(t domain.ComplexTensor) domain.ComplexTensor {
	return domain.ComplexTensor{
		Rows:   t.Rows,
		Cols:   t.Cols,
		Freq:   append([]float64(nil), t.Freq...),
		Values: append([]complex128(nil), t.Values...),
		Err:    append([]float64(nil), t.Err...),
	}
}
