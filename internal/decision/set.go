package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Set 按插入顺序保存 symbol 到 Decision 的映射。
// 上游输出为 JSON 对象，键序即生成顺序，保留它让批次行为可复现。
type Set struct {
	symbols []string
	items   map[string]Decision
}

// NewSet 创建空集合。
func NewSet() *Set {
	return &Set{items: make(map[string]Decision)}
}

// Put 写入一条指令，重复写入同一标的只更新内容不改变位置。
func (s *Set) Put(symbol string, d Decision) {
	if s.items == nil {
		s.items = make(map[string]Decision)
	}
	if _, ok := s.items[symbol]; !ok {
		s.symbols = append(s.symbols, symbol)
	}
	s.items[symbol] = d
}

// Get 返回指定标的的指令。
func (s *Set) Get(symbol string) (Decision, bool) {
	if s == nil || s.items == nil {
		return Decision{}, false
	}
	d, ok := s.items[symbol]
	return d, ok
}

// Symbols 按插入顺序返回全部标的。
func (s *Set) Symbols() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Len 返回标的数量。
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.symbols)
}

// Validate 校验集合内全部指令。
func (s *Set) Validate() error {
	if s == nil {
		return nil
	}
	for _, symbol := range s.symbols {
		if strings.TrimSpace(symbol) == "" {
			return errors.New("symbol 不能为空")
		}
		if err := s.items[symbol].Validate(); err != nil {
			return fmt.Errorf("标的 %s 指令非法: %w", symbol, err)
		}
	}
	return nil
}

// MarshalJSON 按插入顺序输出 JSON 对象。
func (s *Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, symbol := range s.symbols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(s.items[symbol])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 逐个读取键值对以保留对象键序。
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("解析决策集合失败: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("决策集合必须为 JSON 对象，收到 %v", tok)
	}

	s.symbols = nil
	s.items = make(map[string]Decision)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("解析决策键失败: %w", err)
		}
		symbol, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("决策键必须为字符串，收到 %v", keyTok)
		}

		var d Decision
		if err := dec.Decode(&d); err != nil {
			return fmt.Errorf("解析标的 %s 的指令失败: %w", symbol, err)
		}
		s.Put(symbol, d)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("解析决策集合结尾失败: %w", err)
	}
	return nil
}

// Envelope 为上游管线输出的完整载荷。AnalystSignals 仅透传给输出面板。
type Envelope struct {
	Decisions      *Set            `json:"decisions"`
	AnalystSignals json.RawMessage `json:"analyst_signals,omitempty"`
}

// Validate 校验载荷内容。缺少 decisions 字段的载荷直接拒绝，
// 避免节点收下一份永远无法派发的输出。
func (e *Envelope) Validate() error {
	if e == nil {
		return errors.New("上游输出载荷不能为空")
	}
	if e.Decisions == nil {
		return errors.New("上游输出缺少 decisions 字段")
	}
	return e.Decisions.Validate()
}

// ParseEnvelope 解析上游输出载荷并完成校验。
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("解析上游输出失败: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
