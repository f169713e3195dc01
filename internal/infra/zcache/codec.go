package zcache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/domain"
)

// 文件布局：
//
//	$KEY=v1,v2,...\n   （若干行，顺序即 Metadata 顺序）
//	$END\n
//	int32 little-endian 样本，按行交织（TS.NPNT 行 × CH.NUMBER 列）
const endMarker = "$END"

var errNoEnd = errors.New("缺少 $END 头部结束标记")

// DecodeHeader 读取文件头；返回的 reader 停在样本区起点。
func DecodeHeader(r io.Reader) (*domain.Metadata, *bufio.Reader, error) {
	br := bufio.NewReader(r)
	md := domain.NewMetadata()
	for {
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return nil, nil, errNoEnd
			}
			return nil, nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == endMarker {
			return md, br, nil
		}
		if line == "" {
			if errors.Is(err, io.EOF) {
				return nil, nil, errNoEnd
			}
			continue
		}
		if !strings.HasPrefix(line, "$") {
			return nil, nil, fmt.Errorf("非法头部行：%q", line)
		}
		key, val, ok := strings.Cut(line[1:], "=")
		if !ok {
			return nil, nil, fmt.Errorf("头部行缺少 '='：%q", line)
		}
		md.Set(key, splitValues(val)...)
		if errors.Is(err, io.EOF) {
			return nil, nil, errNoEnd
		}
	}
}

func splitValues(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Encode 写出完整缓存文件。
func Encode(w io.Writer, md *domain.Metadata, s domain.Series) error {
	var hdr bytes.Buffer
	for _, f := range md.Fields() {
		fmt.Fprintf(&hdr, "$%s=%s\n", f.Key, strings.Join(f.Values, ","))
	}
	hdr.WriteString(endMarker + "\n")
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, s.Samples)
}

// decodeSamples 读取 rows × channels 个样本。
func decodeSamples(r io.Reader, rows, channels int) (domain.Series, error) {
	if rows < 0 || channels <= 0 {
		return domain.Series{}, fmt.Errorf("非法维度：rows=%d channels=%d", rows, channels)
	}
	out := domain.Series{Channels: channels, Samples: make([]int32, rows*channels)}
	if err := binary.Read(r, binary.LittleEndian, out.Samples); err != nil {
		return domain.Series{}, fmt.Errorf("样本区长度不足（期望 %d 行）：%w", rows, err)
	}
	return out, nil
}

func intField(md *domain.Metadata, key string) (int, error) {
	v, ok := md.First(key)
	if !ok {
		return 0, &domain.Error{Code: domain.ErrCodeMissingField, Err: fmt.Errorf("缺少字段 %s", key)}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// 部分仪器把整数写成 "1024.0"。
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, fmt.Errorf("字段 %s 不是数字：%q", key, v)
		}
		n = int(f)
	}
	return n, nil
}

// channelCount 优先取 CH.NUMBER，缺失时退化为 CH.CMP 的个数。
func channelCount(md *domain.Metadata) (int, error) {
	if n, err := intField(md, domain.MetaChNumber); err == nil {
		return n, nil
	}
	if cmp, ok := md.Get(domain.MetaChCmp); ok && len(cmp) > 0 {
		return len(cmp), nil
	}
	return 0, &domain.Error{Code: domain.ErrCodeMissingField, Err: fmt.Errorf("缺少字段 %s / %s", domain.MetaChNumber, domain.MetaChCmp)}
}
