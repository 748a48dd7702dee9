package core

import (
	"notebooker/models"
	"sync"
	"time"
)

// authCooldown 凭证鉴权失败后的冷却展示时长
const authCooldown = 60 * time.Second

// healthEntry 单个凭证/模型的运行时状态
type healthEntry struct {
	Failures     int
	Successes    int
	LastError    string
	LastUsed     time.Time
	CoolingUntil time.Time
}

// DispatchHealth 调度健康状态跟踪 (线程安全)
// 仅用于观测：不参与调度决策，游标推进逻辑完全由 Dispatcher 掌握
type DispatchHealth struct {
	mu     sync.RWMutex
	creds  map[string]*healthEntry // 脱敏后的凭证 -> 状态
	models map[string]*healthEntry // 模型名 -> 状态
}

// NewDispatchHealth 创建健康跟踪器
func NewDispatchHealth() *DispatchHealth {
	return &DispatchHealth{
		creds:  make(map[string]*healthEntry),
		models: make(map[string]*healthEntry),
	}
}

func (h *DispatchHealth) credEntry(credential string) *healthEntry {
	masked := models.MaskAPIKey(credential)
	e, ok := h.creds[masked]
	if !ok {
		e = &healthEntry{}
		h.creds[masked] = e
	}
	return e
}

func (h *DispatchHealth) modelEntry(model string) *healthEntry {
	e, ok := h.models[model]
	if !ok {
		e = &healthEntry{}
		h.models[model] = e
	}
	return e
}

// MarkSuccess 记录一次成功调用
func (h *DispatchHealth) MarkSuccess(model, credential string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	ce := h.credEntry(credential)
	ce.Successes++
	ce.LastUsed = now
	ce.CoolingUntil = time.Time{}

	me := h.modelEntry(model)
	me.Successes++
	me.LastUsed = now
}

// MarkAuthFailure 记录凭证鉴权失败，进入冷却展示
func (h *DispatchHealth) MarkAuthFailure(credential string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.credEntry(credential)
	e.Failures++
	e.LastError = "authentication rejected (401)"
	e.LastUsed = time.Now()
	e.CoolingUntil = time.Now().Add(authCooldown)
}

// MarkModelFailure 记录模型级失败（非鉴权）
func (h *DispatchHealth) MarkModelFailure(model string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.modelEntry(model)
	e.Failures++
	if err != nil {
		e.LastError = err.Error()
	}
	e.LastUsed = time.Now()
}

// EntryStatus 对外暴露的单项状态
type EntryStatus struct {
	Name      string `json:"name"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
	LastError string `json:"last_error,omitempty"`
	Cooling   bool   `json:"cooling,omitempty"`
}

// DispatchStatus 调度健康快照
type DispatchStatus struct {
	Credentials []EntryStatus `json:"credentials"`
	Models      []EntryStatus `json:"models"`
}

// Snapshot 返回当前健康快照（凭证已脱敏）
// 冷却到期的条目在快照时懒惰清理
func (h *DispatchHealth) Snapshot() DispatchStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	status := DispatchStatus{
		Credentials: make([]EntryStatus, 0, len(h.creds)),
		Models:      make([]EntryStatus, 0, len(h.models)),
	}

	for name, e := range h.creds {
		if !e.CoolingUntil.IsZero() && now.After(e.CoolingUntil) {
			e.CoolingUntil = time.Time{}
		}
		status.Credentials = append(status.Credentials, EntryStatus{
			Name:      name,
			Successes: e.Successes,
			Failures:  e.Failures,
			LastError: e.LastError,
			Cooling:   !e.CoolingUntil.IsZero() && now.Before(e.CoolingUntil),
		})
	}
	for name, e := range h.models {
		status.Models = append(status.Models, EntryStatus{
			Name:      name,
			Successes: e.Successes,
			Failures:  e.Failures,
			LastError: e.LastError,
		})
	}
	return status
}
