package scan

import (
	"context"
	"strconv"
	"testing"

	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/ledger"
	"github.com/John-Robertt/zmt/internal/infra/zcache"
)

func TestCatalog_AssignsSeqAndCollapsesLineage(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "ST_1_100000_1024.cac", 8, "hx", "hy", "HZ", "tx")
	write(t, dir, "ST_1_100000_1024_rw0-6.cac", 6, "hx", "hy", "HZ", "tx")
	write(t, dir, "ST_1_120000_256.cac", 4, "ex", "ey")

	seq := ledger.NewMemory()
	got, err := Catalog(context.Background(), zcache.New(false), seq, dir, Options{
		Components: []string{"Hx", "Hy", "Hz", "Ex", "Ey"},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望谱系折叠后 2 条记录，实际 %d", len(got))
	}

	// 原文件 Seq=1，resize 结果 Seq=2 替代它；256 文件 Seq=3。
	if got[0].Name != "ST_1_100000_1024_rw0-6.cac" || got[0].SampleCount != 6 {
		t.Fatalf("期望保留最新 resize 结果，实际 %+v", got[0])
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("ID 未连续编号：%d %d", got[0].ID, got[1].ID)
	}
	if got[0].Seq >= got[1].Seq {
		t.Fatalf("输出应按 Seq 升序：%d %d", got[0].Seq, got[1].Seq)
	}
	want := []string{"Hx", "Hy", "Hz"}
	if len(got[0].Components) != len(want) {
		t.Fatalf("分量过滤不一致：%v", got[0].Components)
	}
	for i := range want {
		if got[0].Components[i] != want[i] {
			t.Fatalf("分量[%d]=%q，期望 %q", i, got[0].Components[i], want[i])
		}
	}
	if got[1].Date != "2020-06-01" {
		t.Fatalf("日期未规范化：%q", got[1].Date)
	}
}

func TestCatalog_SeqStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "ST_1_100000_1024.cac", 8, "hx")
	seq := ledger.NewMemory()

	a, err := Catalog(context.Background(), zcache.New(false), seq, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Catalog(context.Background(), zcache.New(false), seq, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if a[0].Seq != b[0].Seq {
		t.Fatalf("重复编目 Seq 变化：%d -> %d", a[0].Seq, b[0].Seq)
	}
}

func TestCatalog_AllVersionsKeepsLineage(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "ST_1_100000_1024.cac", 8, "hx")
	write(t, dir, "ST_1_100000_1024_rw2-6.cac", 6, "hx")

	got, err := Catalog(context.Background(), zcache.New(false), ledger.NewMemory(), dir, Options{AllVersions: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AllVersions 应保留谱系内全部文件，实际 %d", len(got))
	}
	if got[0].Name != "ST_1_100000_1024.cac" || got[1].Name != "ST_1_100000_1024_rw2-6.cac" {
		t.Fatalf("顺序不符合 Seq 升序：%q %q", got[0].Name, got[1].Name)
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"06/01/20":   "2020-06-01",
		"2020-06-01": "2020-06-01",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeDate(in); got != want {
			t.Fatalf("NormalizeDate(%q)=%q，期望 %q", in, got, want)
		}
	}
}

func write(t *testing.T, dir, name string, rows int, comps ...string) {
	t.Helper()
	md := domain.NewMetadata()
	md.Set(domain.MetaNPnt, strconv.Itoa(rows))
	md.Set(domain.MetaADFreq, "1024")
	md.Set(domain.MetaChNumber, strconv.Itoa(len(comps)))
	md.Set(domain.MetaChCmp, comps...)
	md.Set(domain.MetaDateOld, "06/01/20")
	s := domain.Series{Channels: len(comps), Samples: make([]int32, rows*len(comps))}
	if _, err := zcache.New(false).Write(dir, name, md, s); err != nil {
		t.Fatalf("写入 fixture 失败：%v", err)
	}
}
