// Package edi 把阻抗/倾子张量写成 EDI 交换格式。
package edi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/John-Robertt/zmt/internal/app/tensor"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
)

var _ domain.ExchangeFileWriter = Writer{}

// Writer 原子写出 EDI 文件（已存在则替换）。
type Writer struct{}

func (Writer) Write(ctx context.Context, ex domain.Exchange) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ex.Path == "" {
		return "", &domain.Error{Code: domain.ErrCodeConfigMissingPath, Err: fmt.Errorf("未指定 EDI 输出路径")}
	}
	b, err := Encode(ex)
	if err != nil {
		return "", err
	}
	err = fsx.WriteAtomic(filepath.Dir(ex.Path), filepath.Base(ex.Path), true, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
	if err != nil {
		return "", &domain.Error{Code: domain.ErrCodeIOFailed, Path: ex.Path, Err: err}
	}
	return ex.Path, nil
}

// 每行输出的数值个数。
const perLine = 6

// Encode 生成 EDI 文本。
//
// 频率轴取自阻抗张量（为空时取倾子张量）；倾子按频点键映射到该轴，缺失的频点写 0。
func Encode(ex domain.Exchange) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(">HEAD\n")
	writeFields(&b, ex.Head)
	b.WriteString("\n")

	maxLines := "1000"
	info := ex.Info
	if len(info) > 0 && info[0].Key == "MAXLINES" {
		maxLines, info = info[0].Value, info[1:]
	}
	fmt.Fprintf(&b, ">INFO\tMAXLINES=%s\n", maxLines)
	for _, f := range info {
		if f.Value == "" {
			fmt.Fprintf(&b, "    %s:\n", f.Key)
			continue
		}
		fmt.Fprintf(&b, "        %s=%s\n", f.Key, f.Value)
	}
	b.WriteString("\n")

	b.WriteString(">=DEFINEMEAS\n")
	writeFields(&b, ex.DefineMeas)
	b.WriteString("\n")
	for _, m := range ex.Meas {
		if m.Kind == "EMEAS" {
			fmt.Fprintf(&b, ">EMEAS ID=%s CHTYPE=%s X=%s Y=%s X2=%s Y2=%s\n",
				m.ID, m.ChType, num(m.X), num(m.Y), num(m.X2), num(m.Y2))
			continue
		}
		fmt.Fprintf(&b, ">HMEAS ID=%s CHTYPE=%s X=%s Y=%s AZM=%s\n",
			m.ID, m.ChType, num(m.X), num(m.Y), num(m.Azm))
	}
	b.WriteString("\n")

	b.WriteString(">=MTSECT\n")
	writeFields(&b, ex.MTSect)
	b.WriteString("\n")

	z, tip := ex.Z, ex.Tipper
	freq := z.Freq
	if len(freq) == 0 {
		freq = tip.Freq
	}
	n := len(freq)

	writeBlock(&b, ">FREQ //", freq)
	writeBlock(&b, ">ZROT //", make([]float64, n))

	for _, c := range []struct {
		name string
		i, j int
	}{{"ZXX", 0, 0}, {"ZXY", 0, 1}, {"ZYX", 1, 0}, {"ZYY", 1, 1}} {
		re, im, vr := column(z, freq, c.i, c.j)
		writeBlock(&b, ">"+c.name+"R ROT=ZROT //", re)
		writeBlock(&b, ">"+c.name+"I ROT=ZROT //", im)
		writeBlock(&b, ">"+c.name+".VAR ROT=ZROT //", vr)
	}

	b.WriteString(">!****TIPPER PARAMETERS****!\n")
	for _, c := range []struct {
		name string
		j    int
	}{{"TX", 0}, {"TY", 1}} {
		re, im, vr := column(tip, freq, 0, c.j)
		writeBlock(&b, ">"+c.name+"R.EXP ROT=ZROT //", re)
		writeBlock(&b, ">"+c.name+"I.EXP ROT=ZROT //", im)
		writeBlock(&b, ">"+c.name+"VAR.EXP ROT=ZROT //", vr)
	}

	b.WriteString(">END\n")
	return b.Bytes(), nil
}

// column 取出张量 (i,j) 位置在 freq 轴上的实部/虚部/误差。
func column(t domain.ComplexTensor, freq []float64, i, j int) (re, im, vr []float64) {
	re = make([]float64, len(freq))
	im = make([]float64, len(freq))
	vr = make([]float64, len(freq))
	if t.Len() == 0 || i >= t.Rows || j >= t.Cols {
		return re, im, vr
	}
	index := make(map[string]int, t.Len())
	for k, f := range t.Freq {
		if _, ok := index[tensor.FreqKey(f)]; !ok {
			index[tensor.FreqKey(f)] = k
		}
	}
	for n, f := range freq {
		k, ok := index[tensor.FreqKey(f)]
		if !ok {
			continue
		}
		v := t.At(k, i, j)
		re[n], im[n], vr[n] = real(v), imag(v), t.ErrAt(k, i, j)
	}
	return re, im, vr
}

func writeFields(b *bytes.Buffer, fs []domain.Field) {
	for _, f := range fs {
		fmt.Fprintf(b, "    %s=%s\n", f.Key, f.Value)
	}
}

func writeBlock(b *bytes.Buffer, title string, vs []float64) {
	fmt.Fprintf(b, "%s%d\n", title, len(vs))
	for i, v := range vs {
		fmt.Fprintf(b, " %+.6e", v)
		if (i+1)%perLine == 0 || i == len(vs)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
