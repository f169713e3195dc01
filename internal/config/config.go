package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/zmt/internal/domain"
)

const (
	// ErrCodeNotFound 表示既没有给出路径，也找不到配置文件。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示命令需要的目录既不在 CLI 也不在配置里。
	ErrCodeMissingPath = domain.ErrCodeConfigMissingPath
)

const (
	// FileName 是工作目录下默认发现的配置文件名。
	FileName = "zmt.yaml"
	// EnvFile 是可选的环境变量文件，位于工作目录下。
	EnvFile = ".env"
	// EnvPrefix 是环境变量前缀。
	EnvPrefix = "ZMT_"
	// StateDir 是 cache 目录下存放 ledger 与 report 的子目录。
	StateDir = ".zmt"
)

// Command 决定哪个目录是必填的。
type Command string

const (
	CommandCfg    Command = "cfg"
	CommandEDI    Command = "edi"
	CommandMTEdit Command = "mtedit"
)

// CLIArgs 是 CLI 暴露的入口，保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply: true。
type CLIArgs struct {
	Command    Command
	Path       string // 位置参数：cfg -> cache_path，edi -> avg_dir，mtedit -> 输出目录
	ConfigFile string // --config

	Station    string
	RRStation  string
	RemotePath string

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 zmt.yaml。
type FileConfig struct {
	Station    string            `yaml:"station"`
	RRStation  string            `yaml:"rr_station"`
	CachePath  string            `yaml:"cache_path"`
	RemotePath string            `yaml:"remote_path"`
	SurveyFile string            `yaml:"survey_file"`
	SavePath   string            `yaml:"save_path"`
	LedgerPath string            `yaml:"ledger_path"`
	Apply      *bool             `yaml:"apply"`
	Tolerance  map[string]string `yaml:"tolerance"`
	AvgDir     string            `yaml:"avg_dir"`
	MTEditCfg  string            `yaml:"mtedit_cfg"`
	MTFTCfg    string            `yaml:"mtft_cfg"`
	EDIPath    string            `yaml:"edi_path"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（路径均为 clean + absolute）。
type EffectiveConfig struct {
	Command    Command
	ConfigFile string // 实际读取的配置文件；未读取时为空

	Station    string
	RRStation  string
	CachePath  string
	RemotePath string
	SurveyFile string
	SavePath   string // mtft24.cfg 输出路径
	LedgerPath string
	Apply      bool

	// Tolerance 只包含配置里显式给出的采样率容差（秒）。
	Tolerance map[string]int

	AvgDir    string
	MTEditCfg string
	MTFTCfg   string
	EDIPath   string
}

// StateDir 返回 cache 目录下的状态目录（report.json 等）。
func (c EffectiveConfig) StateDir() string {
	if c.CachePath == "" {
		return ""
	}
	return filepath.Join(c.CachePath, StateDir)
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 缺少必填路径", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) --config 指定的文件必须存在
// 2) 否则读取 <cwd>/zmt.yaml（可选）
// 3) <cwd>/.env 存在时作为环境变量的补充（进程环境优先）
//
// 覆盖优先级（固定）：CLI > 环境变量 ZMT_* > 配置文件 > 默认值。
// 配置文件里的相对路径以配置文件所在目录为基准；CLI/环境变量里的以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		required = true
	}
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if required && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	env, err := loadEnv(filepath.Join(cwdAbs, EnvFile))
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(cwdAbs, EnvFile), Err: err}
	}

	eff, err := merge(cwdAbs, cli, fc, exists, cfgPath, env)
	if err != nil {
		return EffectiveConfig{}, err
	}
	if !exists {
		cfgPath = ""
	}
	eff.ConfigFile = cfgPath

	// 命令所需的目录缺失：没有配置文件时报 not_found（与无参运行一致），否则报 missing_path。
	if need := missingRequired(eff); need != "" {
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileName), Err: os.ErrNotExist}
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: fmt.Errorf("配置文件 %q 缺少 %s", cfgPath, need)}
	}
	return eff, nil
}

// missingRequired 返回命令缺少的必填项名称；齐全时返回空串。
func missingRequired(c EffectiveConfig) string {
	switch c.Command {
	case CommandCfg:
		if c.CachePath == "" {
			return "cache_path"
		}
	case CommandEDI:
		if c.AvgDir == "" {
			return "avg_dir"
		}
		if c.Station == "" {
			return "station"
		}
	case CommandMTEdit:
		if c.SavePath == "" && c.CachePath == "" {
			return "cache_path"
		}
	}
	return ""
}

type envFunc func(key string) (string, bool)

// loadEnv 返回一个先查进程环境、再查 .env 的查找函数。
func loadEnv(path string) (envFunc, error) {
	dotenv := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		dotenv = m
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig, fromFile bool, cfgPath string, env envFunc) (EffectiveConfig, error) {
	base := cwd
	if fromFile {
		base = filepath.Dir(cfgPath)
	}

	// pick：CLI > env > file；路径按来源选择基准目录。
	pick := func(cliVal, envKey, fileVal string, isPath bool) string {
		if v := strings.TrimSpace(cliVal); v != "" {
			if isPath {
				return absCleanFrom(cwd, v)
			}
			return v
		}
		if v, ok := env(envKey); ok && strings.TrimSpace(v) != "" {
			if isPath {
				return absCleanFrom(cwd, v)
			}
			return strings.TrimSpace(v)
		}
		if v := strings.TrimSpace(fileVal); v != "" {
			if isPath {
				return absCleanFrom(base, v)
			}
			return v
		}
		return ""
	}

	eff := EffectiveConfig{
		Command:    cli.Command,
		Station:    pick(cli.Station, "STATION", fc.Station, false),
		RRStation:  pick(cli.RRStation, "RR_STATION", fc.RRStation, false),
		RemotePath: pick(cli.RemotePath, "REMOTE_PATH", fc.RemotePath, true),
		SurveyFile: pick("", "SURVEY_FILE", fc.SurveyFile, true),
		SavePath:   pick("", "SAVE_PATH", fc.SavePath, true),
		LedgerPath: pick("", "LEDGER_PATH", fc.LedgerPath, true),
		MTEditCfg:  pick("", "MTEDIT_CFG", fc.MTEditCfg, true),
		MTFTCfg:    pick("", "MTFT_CFG", fc.MTFTCfg, true),
		EDIPath:    pick("", "EDI_PATH", fc.EDIPath, true),
	}

	// 位置参数按命令落到不同字段。
	switch cli.Command {
	case CommandEDI:
		eff.AvgDir = pick(cli.Path, "AVG_DIR", fc.AvgDir, true)
		eff.CachePath = pick("", "CACHE_PATH", fc.CachePath, true)
	case CommandMTEdit:
		eff.AvgDir = pick("", "AVG_DIR", fc.AvgDir, true)
		eff.CachePath = pick("", "CACHE_PATH", fc.CachePath, true)
		if p := strings.TrimSpace(cli.Path); p != "" {
			eff.SavePath = absCleanFrom(cwd, p)
		}
	default:
		eff.CachePath = pick(cli.Path, "CACHE_PATH", fc.CachePath, true)
		eff.AvgDir = pick("", "AVG_DIR", fc.AvgDir, true)
	}

	// apply：CLI > env > config > 默认 false
	switch {
	case cli.ApplySet:
		eff.Apply = cli.Apply
	default:
		if v, ok := env("APPLY"); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: EnvPrefix + "APPLY", Err: fmt.Errorf("不是布尔值：%q", v)}
			}
			eff.Apply = b
		} else if fc.Apply != nil {
			eff.Apply = *fc.Apply
		}
	}

	tol, err := parseTolerance(fc.Tolerance)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.Tolerance = tol

	// 默认值
	if eff.CachePath != "" {
		if eff.SavePath == "" && cli.Command != CommandMTEdit {
			eff.SavePath = filepath.Join(eff.CachePath, "mtft24.cfg")
		}
		if eff.LedgerPath == "" {
			eff.LedgerPath = filepath.Join(eff.CachePath, StateDir, "ledger.db")
		}
	}
	if cli.Command == CommandMTEdit && eff.SavePath == "" && eff.CachePath != "" {
		eff.SavePath = eff.CachePath
	}
	if eff.AvgDir != "" {
		if eff.MTFTCfg == "" {
			eff.MTFTCfg = filepath.Join(eff.AvgDir, "mtft24.cfg")
		}
		if eff.MTEditCfg == "" {
			eff.MTEditCfg = filepath.Join(eff.AvgDir, "mtedit.cfg")
		}
		if eff.EDIPath == "" && eff.Station != "" {
			eff.EDIPath = filepath.Join(filepath.Dir(eff.AvgDir), eff.Station+".edi")
		}
	}
	return eff, nil
}

// parseTolerance 接受 "2m"/"5s" 这样的时长，或纯数字秒数。
func parseTolerance(in map[string]string) (map[string]int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(in))
	for rate, v := range in {
		rate = strings.TrimSpace(rate)
		if n, err := strconv.Atoi(rate); err != nil || n <= 0 {
			return nil, fmt.Errorf("tolerance 的键必须是正整数采样率：%q", rate)
		}
		v = strings.TrimSpace(v)
		if secs, err := strconv.Atoi(v); err == nil {
			if secs < 0 {
				return nil, fmt.Errorf("tolerance[%s] 不能为负：%q", rate, v)
			}
			out[rate] = secs
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("tolerance[%s] 不是合法时长：%q", rate, v)
		}
		out[rate] = int(d / time.Second)
	}
	return out, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
