// Package optional 区分 JSON 请求中“未提供”“显式 null”和“提供了值”三种状态。
package optional

import (
	"bytes"
	"encoding/json"
)

// Field 是部分更新请求中的单个字段。
//
// 键缺失时 Set 为 false；键为 null 时 Set 与 Null 均为 true；否则 Value 保存解析出的值。
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some 构造一个已提供值的字段。
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null 构造一个显式为 null 的字段。
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// IsSet 返回请求中是否出现了该键。
func (f Field[T]) IsSet() bool {
	return f.Set
}

// Get 返回值以及该字段是否携带了非 null 的值。
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set && !f.Null
}

// UnmarshalJSON 只有在键出现时才会被 encoding/json 调用。
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON 未设置或为 null 时输出 null。
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}
