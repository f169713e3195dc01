package zcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/John-Robertt/zmt/internal/cachename"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/infra/fsx"
)

var _ domain.CacheStore = (*Store)(nil)

// Store 是目录上的缓存文件存储。
//
// 约束：
// - DryRun：ResizeAndRewrite 不落盘，只在内存里记下计划写出的文件；
//   之后对该路径的读取与再次 resize 都按计划内容回答，与 apply 的结果一致
// - resize 永远写新文件名，原文件不被修改
type Store struct {
	DryRun bool

	planned map[string]plannedFile
}

// plannedFile 是 dry-run 下“本应写出”的文件：来源文件上从 offset 开始的一段。
type plannedFile struct {
	md     *domain.Metadata
	src    string
	offset int
}

func New(dryRun bool) *Store {
	return &Store{DryRun: dryRun}
}

// List 列出 dir 下（不递归）的缓存文件并读取文件头。
// 文件名无法解析的缓存文件会被跳过；其它 I/O 错误直接返回。
func (s *Store) List(ctx context.Context, dir string) ([]domain.TimeSeriesRecord, error) {
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NotFound(dir, err)
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !cachename.IsCacheFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]domain.TimeSeriesRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := cachename.Parse(name)
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		md, err := s.ReadMetadata(ctx, path)
		if err != nil {
			return nil, err
		}
		rec, err := recordFrom(n, path, md)
		if err != nil {
			return nil, domain.ParseFailed(path, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFrom(n cachename.Name, path string, md *domain.Metadata) (domain.TimeSeriesRecord, error) {
	npnt, err := intField(md, domain.MetaNPnt)
	if err != nil {
		return domain.TimeSeriesRecord{}, err
	}
	rate, err := intField(md, domain.MetaADFreq)
	if err != nil {
		// 采样率缺失时用文件名 token 兜底。
		rate = n.RateValue()
	}
	skip := 0
	if v, ok := md.First(domain.MetaSkip); ok {
		skip, _ = strconv.Atoi(v)
	}
	date, ok := md.First(domain.MetaDate)
	if !ok {
		date, _ = md.First(domain.MetaDateOld)
	}
	comps, _ := md.Get(domain.MetaChCmp)
	gains, _ := md.Get(domain.MetaChGain)

	return domain.TimeSeriesRecord{
		Name:         n.File,
		Path:         path,
		Station:      n.Station,
		StartToken:   n.Start,
		RateToken:    n.Rate,
		SamplingRate: rate,
		SampleCount:  npnt,
		Skip:         skip,
		Date:         date,
		Components:   append([]string(nil), comps...),
		Gains:        append([]string(nil), gains...),
	}, nil
}

func (s *Store) ReadMetadata(ctx context.Context, path string) (*domain.Metadata, error) {
	if p, ok := s.planned[path]; ok {
		return p.md.Clone(), nil
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	md, _, err := DecodeHeader(f)
	if err != nil {
		return nil, domain.ParseFailed(path, err)
	}
	return md, nil
}

func (s *Store) ReadSeries(ctx context.Context, path string) (domain.Series, error) {
	_, series, err := s.read(path)
	return series, err
}

func (s *Store) read(path string) (*domain.Metadata, domain.Series, error) {
	if p, ok := s.planned[path]; ok {
		_, src, err := s.read(p.src)
		if err != nil {
			return nil, domain.Series{}, err
		}
		rows, _ := intField(p.md, domain.MetaNPnt)
		ch := src.Channels
		return p.md.Clone(), domain.Series{
			Channels: ch,
			Samples:  append([]int32(nil), src.Samples[p.offset*ch:(p.offset+rows)*ch]...),
		}, nil
	}
	f, err := open(path)
	if err != nil {
		return nil, domain.Series{}, err
	}
	defer f.Close()

	md, br, err := DecodeHeader(f)
	if err != nil {
		return nil, domain.Series{}, domain.ParseFailed(path, err)
	}
	rows, err := intField(md, domain.MetaNPnt)
	if err != nil {
		return nil, domain.Series{}, domain.ParseFailed(path, err)
	}
	ch, err := channelCount(md)
	if err != nil {
		return nil, domain.Series{}, domain.ParseFailed(path, err)
	}
	series, err := decodeSamples(br, rows, ch)
	if err != nil {
		return nil, domain.Series{}, domain.ParseFailed(path, err)
	}
	return md, series, nil
}

// ResizeAndRewrite 把 path 的样本裁成 w 描述的窗口并写到新文件，返回新路径。
//
// - 窗口等于当前内容（Skip=0 且 Length=当前行数）：不写入，返回 path
// - 目标文件已存在且行数一致（上一次运行已生成）：不写入，返回目标路径
func (s *Store) ResizeAndRewrite(ctx context.Context, path string, w domain.Window) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	md, err := s.ReadMetadata(ctx, path)
	if err != nil {
		return "", err
	}
	rows, err := intField(md, domain.MetaNPnt)
	if err != nil {
		return "", domain.ParseFailed(path, err)
	}
	if w.Skip < 0 || w.Length < 0 || w.Skip+w.Length > rows {
		return "", &domain.Error{
			Code: domain.ErrCodeInconsistentLength,
			Path: path,
			Err:  fmt.Errorf("窗口 skip=%d length=%d 超出 %d 行", w.Skip, w.Length, rows),
		}
	}
	if w.Skip == 0 && w.Length == rows {
		return path, nil
	}

	n, err := cachename.Parse(path)
	if err != nil {
		return "", domain.ParseFailed(path, err)
	}
	prevSkip := 0
	if v, ok := md.First(domain.MetaSkip); ok {
		prevSkip, _ = strconv.Atoi(v)
	}
	totalSkip := prevSkip + w.Skip
	dir := filepath.Dir(path)
	name := n.WithWindow(totalSkip, w.Length)
	dst := filepath.Join(dir, name)

	if existing, err := s.ReadMetadata(ctx, dst); err == nil {
		if got, e := intField(existing, domain.MetaNPnt); e == nil && got == w.Length {
			return dst, nil
		}
		return "", &domain.Error{Code: domain.ErrCodeInconsistentLength, Path: dst, Err: fmt.Errorf("已存在且行数不符")}
	} else if domain.Code(err) != domain.ErrCodeNotFound {
		return "", err
	}

	out := md.Clone()
	out.Set(domain.MetaNPnt, strconv.Itoa(w.Length))
	out.Set(domain.MetaSkip, strconv.Itoa(totalSkip))

	if s.DryRun {
		src, offset := path, w.Skip
		if p, ok := s.planned[path]; ok {
			src, offset = p.src, p.offset+w.Skip
		}
		if s.planned == nil {
			s.planned = map[string]plannedFile{}
		}
		s.planned[dst] = plannedFile{md: out, src: src, offset: offset}
		return dst, nil
	}

	_, series, err := s.read(path)
	if err != nil {
		return "", err
	}
	ch := series.Channels
	trimmed := domain.Series{
		Channels: ch,
		Samples:  append([]int32(nil), series.Samples[w.Skip*ch:(w.Skip+w.Length)*ch]...),
	}
	err = fsx.WriteAtomic(dir, name, false, func(wr io.Writer) error {
		return Encode(wr, out, trimmed)
	})
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return dst, nil
		}
		return "", writeError(dst, err)
	}
	return dst, nil
}

// Write 写出一个新的缓存文件（目标已存在则失败）。
func (s *Store) Write(dir, name string, md *domain.Metadata, series domain.Series) (string, error) {
	if s.DryRun {
		return filepath.Join(dir, name), nil
	}
	err := fsx.WriteAtomic(dir, name, false, func(w io.Writer) error {
		return Encode(w, md, series)
	})
	if err != nil {
		return "", writeError(filepath.Join(dir, name), err)
	}
	return filepath.Join(dir, name), nil
}

// writeError 把写入失败归为 io_failed；路径类型冲突与跨盘 rename 给出可操作的提示。
func writeError(dst string, err error) error {
	switch {
	case fsx.IsPathTypeConflict(err):
		err = fmt.Errorf("目标位置已被目录占用，请移走后重试：%w", err)
	case fsx.IsCrossDevice(err):
		err = fmt.Errorf("缓存目录跨越挂载点，无法原子写入：%w", err)
	}
	return &domain.Error{Code: domain.ErrCodeIOFailed, Path: dst, Err: err}
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NotFound(path, err)
		}
		return nil, err
	}
	return f, nil
}
