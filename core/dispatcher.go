package core

import (
	"context"
	"errors"
	"fmt"
	"notebooker/models"
	"time"

	"github.com/sirupsen/logrus"
)

// GenerateResult 一次调度的结果
// Degraded 为 true 时，Text 来自本地模板兜底而非远程模型
type GenerateResult struct {
	Text      string `json:"text"`
	ModelName string `json:"model_name"`
	Degraded  bool   `json:"degraded"`
}

// Dispatcher 兜底调度器
// 串行状态机：同一次 Generate 内部任意时刻最多只有一个在途请求，
// 不向多个模型并发扇出——顺序性和上游限流优先于延迟。
// 两个游标被并发的 Generate 调用共享（各自池内加锁），所以后一次
// 请求会从前一次停下的位置继续，相当于记住了最近可用的组合
type Dispatcher struct {
	credentials *CredentialPool
	models      *ModelList
	client      CompletionClient
	health      *DispatchHealth
	logger      *logrus.Logger
	cfg         DispatchConfig
}

// NewDispatcher 构造函数，依赖全部显式注入
func NewDispatcher(cfg DispatchConfig, creds *CredentialPool, list *ModelList, client CompletionClient, health *DispatchHealth, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		credentials: creds,
		models:      list,
		client:      client,
		health:      health,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate 找到一个可用的 (凭证, 模型) 组合并返回生成文本
//
// 算法：外层按模型循环 M 次，内层按凭证循环 K 次，总预算 M×K 次尝试。
//   - 成功 → 立即返回，不再继续
//   - 401 → 只推进凭证游标，用下一个凭证重试同一个模型
//   - 其他失败 → 判定该模型对所有凭证都不可用，推进模型游标换模型
//   - 每两次尝试之间固定延时（刻意节流），且必须能被 Context 取消打断
//   - 全部组合耗尽 → 返回模板兜底回复并标记 Degraded
//
// 唯一的硬错误是非法参数和空配置；单次尝试的瞬时错误全部在内部消化
func (d *Dispatcher) Generate(ctx context.Context, prompt string, maxTokens int) (*GenerateResult, error) {
	if maxTokens <= 0 || maxTokens > d.cfg.MaxTokensCeiling {
		return nil, fmt.Errorf("%w: max_tokens must be in (0, %d], got %d", ErrInvalidRequest, d.cfg.MaxTokensCeiling, maxTokens)
	}

	totalModels := d.models.Len()
	totalKeys := d.credentials.Len()
	if totalModels == 0 {
		return nil, ErrNoModels
	}
	if totalKeys == 0 {
		return nil, ErrNoCredentials
	}

	req := CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: d.cfg.Temperature,
	}

	maxAttempts := totalModels * totalKeys
	attempt := 0

	for m := 0; m < totalModels; m++ {
		modelSwitched := false

		for k := 0; k < totalKeys; k++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if attempt > 0 {
				if err := d.waitBetweenAttempts(ctx); err != nil {
					return nil, err
				}
			}
			attempt++

			model, err := d.models.Current()
			if err != nil {
				return nil, err
			}
			credential, err := d.credentials.Current()
			if err != nil {
				return nil, err
			}

			d.logger.Infof("🎯 Attempt %d/%d: model=[%s] key=%s", attempt, maxAttempts, model, models.MaskAPIKey(credential))

			text, cerr := d.client.Complete(ctx, credential, model, req, d.cfg.Timeout())
			if cerr == nil {
				d.health.MarkSuccess(model, credential)
				d.logger.Infof("✅ Success: [%s]", model)
				return &GenerateResult{Text: text, ModelName: model}, nil
			}

			if errors.Is(cerr, ErrInvalidRequest) {
				return nil, cerr
			}

			var ae *AttemptError
			if errors.As(cerr, &ae) && ae.Kind == FailureAuth {
				// 凭证坏了：换凭证，继续怼同一个模型
				d.logger.Warnf("⚠️ Attempt %d failed (auth) - rotating credential", attempt)
				d.health.MarkAuthFailure(credential)
				d.credentials.Advance()
				continue
			}

			// 模型级失败：剩余凭证对这个模型大概率同样失败，直接换模型
			d.logger.Warnf("⚠️ Attempt %d failed: %v - switching model", attempt, cerr)
			d.health.MarkModelFailure(model, cerr)
			d.models.Advance()
			modelSwitched = true
			break
		}

		// 凭证全部试完仍未成功，该模型也要让位
		if !modelSwitched {
			d.models.Advance()
		}
	}

	d.logger.Errorf("💀 All %d attempts exhausted, falling back to template response", maxAttempts)
	return &GenerateResult{
		Text:      FallbackResponse(prompt),
		ModelName: "template-fallback",
		Degraded:  true,
	}, nil
}

// waitBetweenAttempts 两次尝试之间的固定延时，可被取消打断
func (d *Dispatcher) waitBetweenAttempts(ctx context.Context) error {
	delay := d.cfg.AttemptDelay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Models 返回模型优先级列表副本
func (d *Dispatcher) Models() []string {
	return d.models.Values()
}

// CurrentModel 返回当前游标指向的模型
func (d *Dispatcher) CurrentModel() string {
	model, err := d.models.Current()
	if err != nil {
		return ""
	}
	return model
}

// SwitchModel 手动切换当前模型
func (d *Dispatcher) SwitchModel(index int) error {
	if err := d.models.Switch(index); err != nil {
		return err
	}
	d.logger.Infof("🔄 Switched to model: %s", d.CurrentModel())
	return nil
}

// Health 返回健康跟踪器
func (d *Dispatcher) Health() *DispatchHealth {
	return d.health
}
