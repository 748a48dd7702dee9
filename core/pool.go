package core

import (
	"errors"
	"sync"
)

var (
	ErrNoCredentials   = errors.New("no credentials configured")
	ErrNoModels        = errors.New("no models configured")
	ErrModelOutOfRange = errors.New("model index out of range")
)

// CredentialPool 凭证池 (线程安全)
// 游标只在调度失败后推进，跨请求保留——下一次调度会从上一次
// 成功/停止的位置继续，而不是每次从头开始
type CredentialPool struct {
	mu     sync.RWMutex
	values []string
	cursor int
}

// NewCredentialPool 创建凭证池，保序去重
func NewCredentialPool(values []string) *CredentialPool {
	seen := make(map[string]bool, len(values))
	deduped := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		deduped = append(deduped, v)
	}
	return &CredentialPool{values: deduped}
}

// Len 返回凭证数量
func (p *CredentialPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

// Current 返回当前游标指向的凭证
func (p *CredentialPool) Current() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.values) == 0 {
		return "", ErrNoCredentials
	}
	return p.values[p.cursor], nil
}

// Advance 推进游标（取模回绕），空池时为 no-op
// 在密集失败循环中重复调用是安全的，只会不断轮转
func (p *CredentialPool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.values) == 0 {
		return
	}
	p.cursor = (p.cursor + 1) % len(p.values)
}

// Cursor 返回当前游标位置
func (p *CredentialPool) Cursor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// ModelList 模型优先级列表 (线程安全)
// 与凭证池各自持有独立游标：换模型不会重置凭证游标，反之亦然，
// 这样可以先用不同凭证重试同一个模型，也能让可用的凭证跨模型复用
type ModelList struct {
	mu     sync.RWMutex
	values []string
	cursor int
}

// NewModelList 创建模型列表，保序去重
func NewModelList(values []string) *ModelList {
	seen := make(map[string]bool, len(values))
	deduped := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		deduped = append(deduped, v)
	}
	return &ModelList{values: deduped}
}

// Len 返回模型数量
func (l *ModelList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}

// Current 返回当前游标指向的模型
func (l *ModelList) Current() (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.values) == 0 {
		return "", ErrNoModels
	}
	return l.values[l.cursor], nil
}

// Advance 推进游标（取模回绕），空列表时为 no-op
func (l *ModelList) Advance() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.values) == 0 {
		return
	}
	l.cursor = (l.cursor + 1) % len(l.values)
}

// Cursor 返回当前游标位置
func (l *ModelList) Cursor() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

// Switch 直接切换到指定模型（设置页的手动选择）
func (l *ModelList) Switch(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.values) {
		return ErrModelOutOfRange
	}
	l.cursor = index
	return nil
}

// Values 返回模型列表副本
func (l *ModelList) Values() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.values))
	copy(out, l.values)
	return out
}
