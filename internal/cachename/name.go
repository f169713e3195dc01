package cachename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/zmt/internal/domain"
)

// resize 后缀：_rw<累计 skip>-<行数>。只追加在末尾，token[1..3] 保持逐字节不变。
var resizeRE = regexp.MustCompile(`_rw([0-9]+)-([0-9]+)$`)

var startRE = regexp.MustCompile(`^[0-9]{6}$`)

const (
	KindNotCache   = "not_cache"
	KindFewTokens  = "too_few_tokens"
	KindBadStart   = "bad_start"
	KindBadRate    = "bad_rate"
	KindEmptyToken = "empty_token"
)

type ParseError struct {
	Kind string
	Name string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindNotCache:
		return fmt.Sprintf("不是缓存文件：%q", e.Name)
	case KindFewTokens:
		return fmt.Sprintf("文件名 token 不足（需要 <x>_<站名>_<HHMMSS>_<采样率>）：%q", e.Name)
	case KindBadStart:
		return fmt.Sprintf("起始时间 token 不是 HHMMSS：%q", e.Name)
	case KindBadRate:
		return fmt.Sprintf("采样率 token 不是正整数：%q", e.Name)
	default:
		return fmt.Sprintf("文件名无法解析：%q", e.Name)
	}
}

// Name 是从缓存文件名解析出的 token。
type Name struct {
	File    string // 原始文件名（含扩展名）
	Base    string // 去扩展名
	Lineage string // 去掉 resize 后缀后的 Base
	Ext     string

	Station string
	Start   string
	Rate    string

	Resized bool
	Skip    int
	Length  int
}

// IsCacheFile 判断是否为需要处理的缓存文件：扩展名 .cac 且文件名不含 '$'。
func IsCacheFile(name string) bool {
	name = filepath.Base(name)
	if strings.Contains(name, "$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), domain.CacheExt)
}

// Parse 从文件名解析 station/start/rate token。
// 文件名约定：token 以 '_' 分隔，token[1]=站名，token[2]=HHMMSS，token[3]=采样率 token。
func Parse(name string) (Name, error) {
	file := filepath.Base(strings.TrimSpace(name))
	if !IsCacheFile(file) {
		return Name{}, &ParseError{Kind: KindNotCache, Name: file}
	}
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)

	n := Name{File: file, Base: base, Lineage: base, Ext: ext}
	if m := resizeRE.FindStringSubmatch(base); m != nil {
		n.Lineage = strings.TrimSuffix(base, m[0])
		n.Resized = true
		n.Skip, _ = strconv.Atoi(m[1])
		n.Length, _ = strconv.Atoi(m[2])
	}

	toks := strings.Split(n.Lineage, "_")
	if len(toks) < 4 {
		return Name{}, &ParseError{Kind: KindFewTokens, Name: file}
	}
	for _, tk := range toks[1:4] {
		if tk == "" {
			return Name{}, &ParseError{Kind: KindEmptyToken, Name: file}
		}
	}
	n.Station, n.Start, n.Rate = toks[1], toks[2], toks[3]

	if !startRE.MatchString(n.Start) {
		return Name{}, &ParseError{Kind: KindBadStart, Name: file}
	}
	if r, err := strconv.Atoi(n.Rate); err != nil || r <= 0 {
		return Name{}, &ParseError{Kind: KindBadRate, Name: file}
	}
	return n, nil
}

// RateValue 返回采样率 token 的整数值（Parse 已保证合法）。
func (n Name) RateValue() int {
	r, _ := strconv.Atoi(n.Rate)
	return r
}

// StartSeconds 把 HHMMSS 转成当天秒数。
func (n Name) StartSeconds() int {
	return hhmmssSeconds(n.Start)
}

// WithWindow 生成 resize 后的文件名。skip 是相对谱系原始文件的累计值。
func (n Name) WithWindow(skip, length int) string {
	return fmt.Sprintf("%s_rw%d-%d%s", n.Lineage, skip, length, n.Ext)
}

// DiffSeconds 返回 b-a 的秒数差（带符号）。
func DiffSeconds(a, b Name) int {
	return b.StartSeconds() - a.StartSeconds()
}

func hhmmssSeconds(s string) int {
	if len(s) != 6 {
		return 0
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return h*3600 + m*60 + sec
}
