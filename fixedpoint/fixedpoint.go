// Package fixedpoint 实现 17.14 有符号定点数（MLFQS 用，不碰浮点）。
//
// 一个 FP 值 x 表示实数 x / 2^14：高 17 位整数（含符号），低 14 位小数。
// 乘除都先扩到 64 位再算，避免中间结果溢出。
package fixedpoint

import (
	"fmt"
)

// Q 是小数位数
const Q = 14

// f 就是 1.0
const f = 1 << Q

// FP 是 17.14 定点数。
// 单独起一个类型，免得跟普通 int 混着算。
type FP int32

// FromInt 把整数 n 变成定点数
func FromInt(n int) FP {
	return FP(n * f)
}

// Trunc 向零截断成整数
func (x FP) Trunc() int {
	return int(x) / f
}

// Round 四舍五入成整数（离零更远的方向进位）
func (x FP) Round() int {
	if x >= 0 {
		return (int(x) + f/2) / f
	}
	return (int(x) - f/2) / f
}

// Add 返回 x + y
func (x FP) Add(y FP) FP {
	return x + y
}

// Sub 返回 x - y
func (x FP) Sub(y FP) FP {
	return x - y
}

// AddInt 返回 x + n
func (x FP) AddInt(n int) FP {
	return x + FromInt(n)
}

// SubInt 返回 x - n
func (x FP) SubInt(n int) FP {
	return x - FromInt(n)
}

// Mul 返回 x * y
func (x FP) Mul(y FP) FP {
	return FP(int64(x) * int64(y) / f)
}

// Div 返回 x / y。y 为 0 会 panic，和整数除法一样。
func (x FP) Div(y FP) FP {
	return FP(int64(x) * f / int64(y))
}

// MulInt 返回 x * n
func (x FP) MulInt(n int) FP {
	return x * FP(n)
}

// DivInt 返回 x / n
func (x FP) DivInt(n int) FP {
	return x / FP(n)
}

// Hundredths 返回 round(100·x)，get_load_avg / get_recent_cpu 这类接口用
func (x FP) Hundredths() int {
	return x.MulInt(100).Round()
}

// String 按两位小数打印，例如 "0.02"、"-1.50"
func (x FP) String() string {
	h := x.Hundredths()
	sign := ""
	if h < 0 {
		sign = "-"
		h = -h
	}
	return fmt.Sprintf("%s%d.%02d", sign, h/100, h%100)
}
