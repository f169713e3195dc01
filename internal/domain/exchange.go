package domain

import "context"

// Field 是有序头部字段（EDI 的 HEAD/INFO/DEFINEMEAS/MTSECT 块都按写入顺序输出）。
type Field struct {
	Key   string
	Value string
}

// Measurement 是 EDI 中一条 HMEAS/EMEAS 定义。
type Measurement struct {
	Kind   string // "HMEAS" | "EMEAS"
	ID     string
	ChType string
	X, Y   float64
	X2, Y2 float64
	Azm    float64
}

// Exchange 是写出交换格式文件所需的全部输入。
type Exchange struct {
	Path string

	Head       []Field
	Info       []Field
	DefineMeas []Field
	Meas       []Measurement
	MTSect     []Field

	Z      ComplexTensor
	Tipper ComplexTensor
}

// ExchangeFileWriter 负责把组装好的张量写成交换格式文件（外部协作者）。
type ExchangeFileWriter interface {
	Write(ctx context.Context, ex Exchange) (string, error)
}
