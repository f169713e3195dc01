package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/zmt/internal/cachename"
	"github.com/John-Robertt/zmt/internal/domain"
)

// Options 控制目录编目。
type Options struct {
	// Components 是允许进入 setup 的分量名（如 Hx/Hy/Hz/Ex/Ey）；为空则不过滤。
	Components []string
	// AllVersions 保留谱系里的每一份文件（remote 候选池用）；默认只保留最新一份。
	AllVersions bool
}

// Catalog 编目 dir 下的缓存文件，返回带创建序号的记录。
//
// 规则（硬约束）：
// - 只读文件头，不读样本
// - Seq 由 seq 分配；同一路径多次编目得到同一个 Seq
// - 同一谱系（原文件及其 resize 结果）只保留 Seq 最大的一份，除非 AllVersions
// - 输出按 Seq 升序，ID 从 1 开始连续编号
func Catalog(ctx context.Context, store domain.CacheStore, seq domain.Sequencer, dir string, opts Options) ([]domain.TimeSeriesRecord, error) {
	recs, err := store.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	// 按文件名排序后登记：谱系原文件永远先于其 resize 结果拿到序号。
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

	allowed := make(map[string]bool, len(opts.Components))
	for _, c := range opts.Components {
		allowed[strings.ToLower(c)] = true
	}

	newest := make(map[string]int, len(recs))
	out := make([]domain.TimeSeriesRecord, 0, len(recs))
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := cachename.Parse(r.Name)
		if err != nil {
			continue
		}
		s, err := seq.Assign(ctx, r.Path)
		if err != nil {
			return nil, fmt.Errorf("分配创建序号失败（%s）：%w", r.Name, err)
		}
		r.Seq = s
		r.Date = NormalizeDate(r.Date)
		r.Components, r.Gains = filterComponents(r.Components, r.Gains, allowed)

		if opts.AllVersions {
			out = append(out, r)
			continue
		}
		if i, ok := newest[n.Lineage]; ok {
			if out[i].Seq < r.Seq {
				out[i] = r
			}
			continue
		}
		newest[n.Lineage] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	for i := range out {
		out[i].ID = i + 1
	}
	return out, nil
}

// NormalizeDate 把 MM/DD/YY 转成 20YY-MM-DD；其它格式原样返回。
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		return s
	}
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return s
	}
	return fmt.Sprintf("20%s-%s-%s", parts[2], parts[0], parts[1])
}

// Capitalize 返回首字母大写、其余小写的分量名（hx -> Hx, HXR -> Hxr）。
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func filterComponents(comps, gains []string, allowed map[string]bool) ([]string, []string) {
	outC := make([]string, 0, len(comps))
	outG := make([]string, 0, len(comps))
	for i, c := range comps {
		if len(allowed) > 0 && !allowed[strings.ToLower(strings.TrimSpace(c))] {
			continue
		}
		outC = append(outC, Capitalize(c))
		g := "1"
		if i < len(gains) && strings.TrimSpace(gains[i]) != "" {
			g = strings.TrimSpace(gains[i])
		}
		outG = append(outG, g)
	}
	return outC, outG
}
