package domain

import (
	"errors"
	"fmt"
)

const (
	ErrCodeNotFound           = "not_found"
	ErrCodeNoMatch            = "no_match"
	ErrCodeMissingField       = "missing_field"
	ErrCodeInconsistentLength = "inconsistent_length"
	ErrCodeParseFailed        = "parse_failed"
	ErrCodeIOFailed           = "io_failed"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingPath  = "config_missing_path"
)

// Error 是带 error_code 的结构化错误。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Code == ErrCodeNotFound:
		return fmt.Sprintf("%s：文件不存在 %q", e.Code, e.Path)
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(path string, err error) *Error {
	return &Error{Code: ErrCodeNotFound, Path: path, Err: err}
}

func ParseFailed(path string, err error) *Error {
	return &Error{Code: ErrCodeParseFailed, Path: path, Err: err}
}

// Code 从 error 链中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
