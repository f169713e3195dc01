package cachename

import (
	"errors"
	"testing"
)

func TestParse_Tokens(t *testing.T) {
	n, err := Parse("/data/cache/20130710_S1_002000_1024.cac")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n.Station != "S1" || n.Start != "002000" || n.Rate != "1024" {
		t.Fatalf("token 解析错误：%+v", n)
	}
	if n.Resized {
		t.Fatalf("原始文件不应标记为 resized")
	}
	if n.StartSeconds() != 20*60 {
		t.Fatalf("StartSeconds 错误：%d", n.StartSeconds())
	}
	if n.RateValue() != 1024 {
		t.Fatalf("RateValue 错误：%d", n.RateValue())
	}
}

func TestParse_ResizedKeepsTokens(t *testing.T) {
	n, err := Parse("20130710_S1_002000_1024_rw5120-4096.cac")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !n.Resized || n.Skip != 5120 || n.Length != 4096 {
		t.Fatalf("resize 后缀解析错误：%+v", n)
	}
	if n.Lineage != "20130710_S1_002000_1024" {
		t.Fatalf("lineage 错误：%q", n.Lineage)
	}
	if n.Station != "S1" || n.Start != "002000" || n.Rate != "1024" {
		t.Fatalf("resize 后 token 必须保持不变：%+v", n)
	}
}

func TestWithWindow_Deterministic(t *testing.T) {
	n, _ := Parse("20130710_S1_002000_1024_rw10-90.cac")
	got := n.WithWindow(20, 80)
	if got != "20130710_S1_002000_1024_rw20-80.cac" {
		t.Fatalf("resize 文件名错误：%q", got)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"20130710_S1_002000_1024.bin":  KindNotCache,
		"20130710_S1$_002000_1024.cac": KindNotCache,
		"S1_002000.cac":                KindFewTokens,
		"x_S1_2000_1024.cac":           KindBadStart,
		"x_S1_002000_abc.cac":          KindBadRate,
	}
	for name, kind := range cases {
		_, err := Parse(name)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s：期望 *ParseError，实际 %v", name, err)
		}
		if pe.Kind != kind {
			t.Fatalf("%s：期望 kind=%s，实际 %s", name, kind, pe.Kind)
		}
	}
}

func TestDiffSeconds(t *testing.T) {
	a, _ := Parse("x_S1_002000_1024.cac")
	b, _ := Parse("x_S1_002005_1024.cac")
	if DiffSeconds(a, b) != 5 || DiffSeconds(b, a) != -5 {
		t.Fatalf("DiffSeconds 错误：%d %d", DiffSeconds(a, b), DiffSeconds(b, a))
	}
}
