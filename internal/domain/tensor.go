package domain

import (
	"math"
)

// ComplexTensor 是按频点索引的复数张量（阻抗 2x2，倾子 1x2）。
//
// 不变量：
// - len(Values) == len(Err) == Len()*Rows*Cols
// - 频率轴只增长不重排；Grow 保留已写入的条目
type ComplexTensor struct {
	Rows int
	Cols int

	Freq   []float64
	Values []complex128
	Err    []float64
}

func NewComplexTensor(rows, cols, n int) ComplexTensor {
	if n < 0 {
		n = 0
	}
	return ComplexTensor{
		Rows:   rows,
		Cols:   cols,
		Freq:   make([]float64, n),
		Values: make([]complex128, n*rows*cols),
		Err:    make([]float64, n*rows*cols),
	}
}

func (t ComplexTensor) Len() int { return len(t.Freq) }

func (t ComplexTensor) offset(k, i, j int) int {
	return (k*t.Rows+i)*t.Cols + j
}

func (t ComplexTensor) At(k, i, j int) complex128 { return t.Values[t.offset(k, i, j)] }
func (t ComplexTensor) ErrAt(k, i, j int) float64  { return t.Err[t.offset(k, i, j)] }

func (t *ComplexTensor) Set(k, i, j int, v complex128) { t.Values[t.offset(k, i, j)] = v }
func (t *ComplexTensor) SetErr(k, i, j int, e float64)  { t.Err[t.offset(k, i, j)] = e }

// Grow 把频率维扩到 n：新建 0 张量，按原位置拷贝旧条目，再替换自身。
// n <= Len() 时不做任何事（绝不截断）。
func (t *ComplexTensor) Grow(n int) {
	if n <= t.Len() {
		return
	}
	g := NewComplexTensor(t.Rows, t.Cols, n)
	copy(g.Freq, t.Freq)
	copy(g.Values, t.Values)
	copy(g.Err, t.Err)
	*t = g
}

// Normalize 把 NaN/Inf 归零。
func (t *ComplexTensor) Normalize() {
	for i, v := range t.Values {
		t.Values[i] = complex(finite(real(v)), finite(imag(v)))
	}
	for i, e := range t.Err {
		t.Err[i] = finite(e)
	}
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
