package run

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/zmt/internal/config"
	"github.com/John-Robertt/zmt/internal/domain"
	"github.com/John-Robertt/zmt/internal/mtedit"
)

const avgEx = `$Survey.Type=CSAMT
$Data.Cmp=ZXY
Skp,Freq,E.mag,B.mag,Z.mag,Z.phz,ARes.mag,ARes.%err,Z.perr,Coher,FC.NUse,FC.NTry
0,1.0000E+01,1.0,2.0,3.5,785.0,12.0,4.0,10.0,0.95,8,10
0,2.0000E+01,1.0,2.0,3.0,700.0,11.0,5.0,11.0,0.90,8,10
$Data.Cmp=TZX
Skp,Freq,E.mag,B.mag,Z.mag,Z.phz,ARes.mag,ARes.%err,Z.perr,Coher,FC.NUse,FC.NTry
0,1.0000E+01,0,0,0.2,100.0,0,2.0,0,0.8,6,10
`

const avgEy = `$Data.Cmp=ZYX
Skp,Freq,E.mag,B.mag,Z.mag,Z.phz,ARes.mag,ARes.%err,Z.perr,Coher,FC.NUse,FC.NTry
0,1.0000E+01,1.0,2.0,4.0,800.0,12.0,4.0,10.0,0.95,8,10
0,4.0000E+01,1.0,2.0,2.0,650.0,11.0,5.0,11.0,0.90,8,10
`

func writeText(t *testing.T, path, s string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

func ediEff(root string, apply bool) config.EffectiveConfig {
	avgDir := filepath.Join(root, "avg")
	return config.EffectiveConfig{
		Command:   config.CommandEDI,
		Station:   "22",
		AvgDir:    avgDir,
		MTFTCfg:   filepath.Join(avgDir, "mtft24.cfg"),
		MTEditCfg: filepath.Join(avgDir, mtedit.FileName),
		EDIPath:   filepath.Join(root, "22.edi"),
		Apply:     apply,
	}
}

func TestExecuteEDI_Apply_WritesExchangeFile(t *testing.T) {
	root := t.TempDir()
	eff := ediEff(root, true)
	files := AvgFiles(eff.AvgDir)
	writeText(t, files[0], avgEx)
	writeText(t, files[1], avgEy)

	rr := ExecuteEDI(context.Background(), eff, nil, nil)
	if !rr.Clean() || rr.Summary.Processed != 2 {
		t.Fatalf("不期望失败：summary=%+v items=%+v", rr.Summary, rr.Items)
	}
	if len(rr.Outputs) != 1 || rr.Outputs[0] != eff.EDIPath {
		t.Fatalf("产物不符合预期：%v", rr.Outputs)
	}

	b, err := os.ReadFile(eff.EDIPath)
	if err != nil {
		t.Fatalf("读取 EDI 失败：%v", err)
	}
	s := string(b)
	for _, want := range []string{">HEAD", ">=DEFINEMEAS", ">FREQ //3", ">ZXYR", ">TXR.EXP", ">END"} {
		if !strings.Contains(s, want) {
			t.Fatalf("EDI 缺少 %q：\n%s", want, s)
		}
	}

	// mtft24.cfg / mtedit.cfg 缺失只产生诊断。
	if len(rr.Diagnostics) != 2 {
		t.Fatalf("期望 2 条诊断，实际 %+v", rr.Diagnostics)
	}
	for _, d := range rr.Diagnostics {
		if d.Code != domain.ErrCodeNotFound {
			t.Fatalf("期望 not_found 诊断，实际 %+v", d)
		}
	}
}

func TestExecuteEDI_DryRun_NoWrites(t *testing.T) {
	root := t.TempDir()
	eff := ediEff(root, false)
	writeText(t, AvgFiles(eff.AvgDir)[0], avgEx)

	rr := ExecuteEDI(context.Background(), eff, nil, nil)
	if rr.Summary.Processed != 1 || rr.Summary.Failed != 1 {
		t.Fatalf("期望 1 个成功 1 个失败：summary=%+v", rr.Summary)
	}
	if _, err := os.Stat(eff.EDIPath); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应写 EDI，但 Stat err=%v", err)
	}
}

func TestExecuteEDI_NoAvgFiles(t *testing.T) {
	root := t.TempDir()
	eff := ediEff(root, true)

	obs := &recordObserver{}
	rr := ExecuteEDI(context.Background(), eff, nil, obs)
	if rr.Summary.Failed != 2 {
		t.Fatalf("期望 2 个失败条目，实际 summary=%+v", rr.Summary)
	}
	for _, it := range rr.Items {
		if it.ErrorCode != domain.ErrCodeNotFound {
			t.Fatalf("期望 not_found，实际 %+v", it)
		}
	}
	if _, err := os.Stat(eff.EDIPath); !os.IsNotExist(err) {
		t.Fatalf("没有测量文件时不应写 EDI，但 Stat err=%v", err)
	}
	if len(obs.phases) != 1 || obs.phases[0] != PhaseRead {
		t.Fatalf("阶段事件不符合预期：%v", obs.phases)
	}
}

func TestExecuteEDI_SurveyStationMissing(t *testing.T) {
	root := t.TempDir()
	eff := ediEff(root, true)
	writeText(t, AvgFiles(eff.AvgDir)[0], avgEx)
	eff.SurveyFile = filepath.Join(root, "survey.yaml")
	writeText(t, eff.SurveyFile, "\"23\":\n  lat: 40.1\n")

	rr := ExecuteEDI(context.Background(), eff, nil, nil)
	if rr.Summary.Failed == 0 {
		t.Fatalf("期望失败：summary=%+v", rr.Summary)
	}
	var found bool
	for _, it := range rr.Items {
		if it.File == "" && it.ErrorCode == domain.ErrCodeNotFound {
			found = true
		}
	}
	if !found {
		t.Fatalf("期望 not_found 合成条目：%+v", rr.Items)
	}
	if _, err := os.Stat(eff.EDIPath); !os.IsNotExist(err) {
		t.Fatalf("找不到测站时不应写 EDI，但 Stat err=%v", err)
	}
}

func TestExecuteMTEdit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	eff := config.EffectiveConfig{Command: config.CommandMTEdit, SavePath: dir, Apply: true}

	rr := ExecuteMTEdit(context.Background(), eff, nil, nil)
	if !rr.Clean() {
		t.Fatalf("不期望失败：%+v", rr.Items)
	}
	want := filepath.Join(dir, mtedit.FileName)
	if len(rr.Outputs) != 1 || rr.Outputs[0] != want {
		t.Fatalf("产物不符合预期：%v", rr.Outputs)
	}
	c, err := mtedit.ReadFile(want)
	if err != nil {
		t.Fatalf("读回 mtedit.cfg 失败：%v", err)
	}
	if len(c.Rows) != len(mtedit.DefaultFrequencies) {
		t.Fatalf("频点行数 %d，期望 %d", len(c.Rows), len(mtedit.DefaultFrequencies))
	}
}
