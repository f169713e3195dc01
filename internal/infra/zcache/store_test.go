package zcache

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
)

func writeFixture(t *testing.T, dir, name string, rows, rate int, comps ...string) string {
	t.Helper()
	md := domain.NewMetadata()
	md.Set(domain.MetaNPnt, strconv.Itoa(rows))
	md.Set(domain.MetaADFreq, strconv.Itoa(rate))
	md.Set(domain.MetaChNumber, strconv.Itoa(len(comps)))
	md.Set(domain.MetaChCmp, comps...)
	md.Set(domain.MetaDate, "2020-06-01")

	samples := make([]int32, rows*len(comps))
	for i := range samples {
		samples[i] = int32(i)
	}
	path, err := New(false).Write(dir, name, md, domain.Series{Channels: len(comps), Samples: samples})
	if err != nil {
		t.Fatalf("写 fixture 失败：%v", err)
	}
	return path
}

func TestStore_ListReadsHeaders(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "ST01_1_100000_1024.cac", 8, 1024, "hx", "hy", "ex")
	writeFixture(t, dir, "ST01_2_110000_256.cac", 4, 256, "hx", "hy")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.cac"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	recs, err := New(false).List(context.Background(), dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", len(recs))
	}
	r := recs[0]
	if r.Station != "ST01" || r.StartToken != "100000" || r.RateToken != "1024" {
		t.Fatalf("token 不一致：%+v", r)
	}
	if r.SampleCount != 8 || r.SamplingRate != 1024 || len(r.Components) != 3 {
		t.Fatalf("文件头不一致：%+v", r)
	}
	if r.Date != "2020-06-01" {
		t.Fatalf("日期不一致：%q", r.Date)
	}
}

func TestStore_ListMissingDir(t *testing.T) {
	_, err := New(false).List(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if domain.Code(err) != domain.ErrCodeNotFound {
		t.Fatalf("期望 not_found，实际：%v", err)
	}
}

func TestStore_ResizeAndRewrite(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "RR_1_100000_1024.cac", 10, 1024, "hx", "hy")
	s := New(false)
	ctx := context.Background()

	dst, err := s.ResizeAndRewrite(ctx, src, domain.Window{Skip: 3, Length: 6})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(dst) != "RR_1_100000_1024_rw3-6.cac" {
		t.Fatalf("目标名不一致：%s", filepath.Base(dst))
	}
	series, err := s.ReadSeries(ctx, dst)
	if err != nil {
		t.Fatalf("读回失败：%v", err)
	}
	if series.Rows() != 6 || series.Samples[0] != 6 {
		t.Fatalf("样本不一致：rows=%d first=%d", series.Rows(), series.Samples[0])
	}

	// 原文件不变
	orig, err := s.ReadSeries(ctx, src)
	if err != nil || orig.Rows() != 10 {
		t.Fatalf("原文件被修改：rows=%d err=%v", orig.Rows(), err)
	}

	// 在 resize 结果上再裁一次：skip 累计，名字基于谱系
	dst2, err := s.ResizeAndRewrite(ctx, dst, domain.Window{Skip: 1, Length: 4})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(dst2) != "RR_1_100000_1024_rw4-4.cac" {
		t.Fatalf("累计 skip 不一致：%s", filepath.Base(dst2))
	}
	md, err := s.ReadMetadata(ctx, dst2)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := md.First(domain.MetaSkip); v != "4" {
		t.Fatalf("TS.SKIP 不一致：%q", v)
	}
}

func TestStore_ResizeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "RR_1_100000_1024.cac", 10, 1024, "hx")
	s := New(false)
	ctx := context.Background()

	same, err := s.ResizeAndRewrite(ctx, src, domain.Window{Skip: 0, Length: 10})
	if err != nil || same != src {
		t.Fatalf("全窗口应原样返回：%s err=%v", same, err)
	}

	a, err := s.ResizeAndRewrite(ctx, src, domain.Window{Skip: 0, Length: 5})
	if err != nil {
		t.Fatal(err)
	}
	st1, _ := os.Stat(a)
	b, err := s.ResizeAndRewrite(ctx, src, domain.Window{Skip: 0, Length: 5})
	if err != nil {
		t.Fatal(err)
	}
	st2, _ := os.Stat(b)
	if a != b || !st1.ModTime().Equal(st2.ModTime()) {
		t.Fatalf("重复 resize 不应重写：%s vs %s", a, b)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("期望目录里 2 个文件，实际 %d", len(entries))
	}
}

func TestStore_ResizeOutOfRange(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "RR_1_100000_1024.cac", 4, 1024, "hx")
	_, err := New(false).ResizeAndRewrite(context.Background(), src, domain.Window{Skip: 2, Length: 4})
	if domain.Code(err) != domain.ErrCodeInconsistentLength {
		t.Fatalf("期望 inconsistent_length，实际：%v", err)
	}
}

func TestStore_DryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "RR_1_100000_1024.cac", 4, 1024, "hx")
	dst, err := New(true).ResizeAndRewrite(context.Background(), src, domain.Window{Skip: 1, Length: 3})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应落盘：%v", err)
	}
}

func TestStore_DryRunChainedResizeMatchesApply(t *testing.T) {
	ctx := context.Background()
	type result struct {
		names []string
		rows  int
		first int32
		skip  string
	}
	chain := func(dryRun bool) result {
		dir := t.TempDir()
		src := writeFixture(t, dir, "RR_1_100000_1024.cac", 10, 1024, "hx", "hy")
		s := New(dryRun)

		a, err := s.ResizeAndRewrite(ctx, src, domain.Window{Skip: 2, Length: 6})
		if err != nil {
			t.Fatalf("dryRun=%v 第一次 resize 失败：%v", dryRun, err)
		}
		// 在第一次的结果上再 resize：dry-run 下 a 并不在磁盘上
		b, err := s.ResizeAndRewrite(ctx, a, domain.Window{Skip: 1, Length: 4})
		if err != nil {
			t.Fatalf("dryRun=%v 第二次 resize 失败：%v", dryRun, err)
		}
		series, err := s.ReadSeries(ctx, b)
		if err != nil {
			t.Fatalf("dryRun=%v 读回失败：%v", dryRun, err)
		}
		md, err := s.ReadMetadata(ctx, b)
		if err != nil {
			t.Fatalf("dryRun=%v 读回文件头失败：%v", dryRun, err)
		}
		skip, _ := md.First(domain.MetaSkip)

		entries, _ := os.ReadDir(dir)
		if dryRun && len(entries) != 1 {
			t.Fatalf("dry-run 不应落盘，目录里有 %d 个文件", len(entries))
		}
		return result{
			names: []string{filepath.Base(a), filepath.Base(b)},
			rows:  series.Rows(),
			first: series.Samples[0],
			skip:  skip,
		}
	}

	dry, applied := chain(true), chain(false)
	if !reflect.DeepEqual(dry, applied) {
		t.Fatalf("dry-run 与 apply 不一致：dry=%+v apply=%+v", dry, applied)
	}
	// 第 3 行 * 2 通道
	if applied.rows != 4 || applied.first != 6 || applied.skip != "3" {
		t.Fatalf("结果不符合预期：%+v", applied)
	}
}

func TestStore_WriteOntoDirectoryIsIOFailed(t *testing.T) {
	dir := t.TempDir()
	name := "RR_1_100000_1024.cac"
	if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
		t.Fatal(err)
	}
	md := domain.NewMetadata()
	md.Set(domain.MetaNPnt, "1")
	md.Set(domain.MetaChNumber, "1")
	_, err := New(false).Write(dir, name, md, domain.Series{Channels: 1, Samples: []int32{1}})
	if domain.Code(err) != domain.ErrCodeIOFailed {
		t.Fatalf("期望 io_failed，实际：%v", err)
	}
	if !fsx.IsPathTypeConflict(err) {
		t.Fatalf("期望保留路径类型冲突错误，实际：%v", err)
	}
}

func TestDecodeHeader_MissingEnd(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "A_1_100000_1024.cac")
	if err := os.WriteFile(p, []byte("$TS.NPNT=4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(false).ReadMetadata(context.Background(), p)
	if domain.Code(err) != domain.ErrCodeParseFailed {
		t.Fatalf("期望 parse_failed，实际：%v", err)
	}
}
