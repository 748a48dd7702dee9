package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// scriptedClient 按 "model/credential" 返回预设结果的假客户端
type scriptedClient struct {
	mu      sync.Mutex
	results map[string]scriptedResult
	calls   []string
}

type scriptedResult struct {
	text string
	err  error
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{results: make(map[string]scriptedResult)}
}

func (f *scriptedClient) set(model, credential, text string, err error) {
	f.results[model+"/"+credential] = scriptedResult{text: text, err: err}
}

func (f *scriptedClient) Complete(_ context.Context, credential, model string, _ CompletionRequest, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := model + "/" + credential
	f.calls = append(f.calls, key)
	r, ok := f.results[key]
	if !ok {
		return "", &AttemptError{Kind: FailureProvider, Status: 500, Detail: "unscripted"}
	}
	return r.text, r.err
}

func (f *scriptedClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() DispatchConfig {
	cfg := DefaultDispatchConfig()
	cfg.AttemptDelayMs = 0 // 测试不等
	return cfg
}

func newTestDispatcher(client CompletionClient, creds, modelNames []string) *Dispatcher {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewDispatcher(testConfig(), NewCredentialPool(creds), NewModelList(modelNames), client, NewDispatchHealth(), logger)
}

func TestGenerateFirstPairSuccess(t *testing.T) {
	client := newScriptedClient()
	client.set("model-a", "sk-1", "generated text", nil)

	d := newTestDispatcher(client, []string{"sk-1", "sk-2"}, []string{"model-a", "model-b"})

	result, err := d.Generate(context.Background(), "draft the overview", 500)
	assert.NoError(t, err)
	assert.Equal(t, "generated text", result.Text)
	assert.Equal(t, "model-a", result.ModelName)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, client.callCount())
}

func TestGenerateAuthFailureRotatesCredentialOnly(t *testing.T) {
	client := newScriptedClient()
	client.set("model-a", "sk-1", "", &AttemptError{Kind: FailureAuth, Status: 401})
	client.set("model-a", "sk-2", "hello", nil)

	creds := NewCredentialPool([]string{"sk-1", "sk-2"})
	modelList := NewModelList([]string{"model-a", "model-b"})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	d := NewDispatcher(testConfig(), creds, modelList, client, NewDispatchHealth(), logger)

	result, err := d.Generate(context.Background(), "hi", 500)
	assert.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "model-a", result.ModelName)
	assert.False(t, result.Degraded)
	assert.Equal(t, []string{"model-a/sk-1", "model-a/sk-2"}, client.calls)

	// 凭证游标停在可用凭证，模型游标没动
	assert.Equal(t, 1, creds.Cursor())
	assert.Equal(t, 0, modelList.Cursor())
}

func TestGenerateProviderErrorSkipsRemainingCredentials(t *testing.T) {
	client := newScriptedClient()
	client.set("model-a", "sk-1", "", &AttemptError{Kind: FailureProvider, Status: 503, Detail: "overloaded"})
	client.set("model-b", "sk-1", "recovered", nil)

	d := newTestDispatcher(client, []string{"sk-1", "sk-2", "sk-3"}, []string{"model-a", "model-b"})

	result, err := d.Generate(context.Background(), "hi", 500)
	assert.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.Equal(t, "model-b", result.ModelName)

	// 模型级失败后不应再用其他凭证重试 model-a
	assert.Equal(t, []string{"model-a/sk-1", "model-b/sk-1"}, client.calls)
}

func TestGenerateExhaustionFallsBackToTemplate(t *testing.T) {
	client := newScriptedClient() // 未预设的组合一律返回 500

	d := newTestDispatcher(client, []string{"sk-1", "sk-2"}, []string{"model-a", "model-b", "model-c"})

	result, err := d.Generate(context.Background(), "please draft a new section", 500)
	assert.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, "template-fallback", result.ModelName)
	assert.Contains(t, result.Text, "Section Draft")

	// 模型级失败直接换模型，每个模型只消耗一次尝试
	assert.Equal(t, 3, client.callCount())
}

func TestGenerateAllAuthFailuresTryEveryPair(t *testing.T) {
	client := newScriptedClient()
	for _, m := range []string{"model-a", "model-b"} {
		for _, k := range []string{"sk-1", "sk-2"} {
			client.set(m, k, "", &AttemptError{Kind: FailureAuth, Status: 401})
		}
	}

	creds := NewCredentialPool([]string{"sk-1", "sk-2"})
	modelList := NewModelList([]string{"model-a", "model-b"})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	d := NewDispatcher(testConfig(), creds, modelList, client, NewDispatchHealth(), logger)

	result, err := d.Generate(context.Background(), "analyze my notebook", 500)
	assert.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Text, "Gap Analysis Report")

	// 鉴权失败逐个换凭证，预算 M×K 全部用完
	assert.Equal(t, 4, client.callCount())

	// 游标轮转整圈后回到起点
	assert.Equal(t, 0, creds.Cursor())
	assert.Equal(t, 0, modelList.Cursor())
}

func TestGenerateInvalidRequestFailsFast(t *testing.T) {
	client := newScriptedClient()
	d := newTestDispatcher(client, []string{"sk-1"}, []string{"model-a"})

	_, err := d.Generate(context.Background(), "hi", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = d.Generate(context.Background(), "hi", 999999)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, client.callCount())
}

func TestGenerateEmptyConfig(t *testing.T) {
	client := newScriptedClient()

	d := newTestDispatcher(client, nil, []string{"model-a"})
	_, err := d.Generate(context.Background(), "hi", 500)
	assert.ErrorIs(t, err, ErrNoCredentials)

	d = newTestDispatcher(client, []string{"sk-1"}, nil)
	_, err = d.Generate(context.Background(), "hi", 500)
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestGenerateContextCancellation(t *testing.T) {
	client := newScriptedClient()
	d := newTestDispatcher(client, []string{"sk-1"}, []string{"model-a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Generate(ctx, "hi", 500)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.callCount())
}

func TestGenerateCursorPersistsAcrossCalls(t *testing.T) {
	client := newScriptedClient()
	client.set("model-b", "sk-1", "from b", nil)

	creds := NewCredentialPool([]string{"sk-1"})
	modelList := NewModelList([]string{"model-a", "model-b"})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	d := NewDispatcher(testConfig(), creds, modelList, client, NewDispatchHealth(), logger)

	// 第一轮: model-a 失败，model-b 成功，模型游标停在 model-b
	result, err := d.Generate(context.Background(), "hi", 500)
	assert.NoError(t, err)
	assert.Equal(t, "from b", result.Text)
	assert.Equal(t, 1, modelList.Cursor())

	// 第二轮直接从 model-b 开始，一次命中
	before := client.callCount()
	result, err = d.Generate(context.Background(), "hi", 500)
	assert.NoError(t, err)
	assert.Equal(t, "from b", result.Text)
	assert.Equal(t, before+1, client.callCount())
}

func TestGenerateConcurrentCursorsStayInRange(t *testing.T) {
	client := newScriptedClient() // 全部失败，制造最多的游标推进

	creds := NewCredentialPool([]string{"sk-1", "sk-2", "sk-3"})
	modelList := NewModelList([]string{"model-a", "model-b"})
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	d := NewDispatcher(testConfig(), creds, modelList, client, NewDispatchHealth(), logger)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := d.Generate(context.Background(), "draft something", 500)
			assert.NoError(t, err)
			assert.True(t, result.Degraded)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, creds.Cursor(), 0)
	assert.Less(t, creds.Cursor(), creds.Len())
	assert.GreaterOrEqual(t, modelList.Cursor(), 0)
	assert.Less(t, modelList.Cursor(), modelList.Len())
}

func TestGenerateRecordsHealth(t *testing.T) {
	badKey := "sk-aaaa-11111111"
	goodKey := "sk-bbbb-22222222"

	client := newScriptedClient()
	client.set("model-a", badKey, "", &AttemptError{Kind: FailureAuth, Status: 401})
	client.set("model-a", goodKey, "ok", nil)

	d := newTestDispatcher(client, []string{badKey, goodKey}, []string{"model-a"})

	_, err := d.Generate(context.Background(), "hi", 500)
	assert.NoError(t, err)

	snapshot := d.Health().Snapshot()
	assert.Len(t, snapshot.Credentials, 2)

	var sawFailure, sawSuccess bool
	for _, e := range snapshot.Credentials {
		// 快照中的凭证必须脱敏
		assert.NotContains(t, e.Name, badKey)
		assert.NotContains(t, e.Name, goodKey)
		assert.Contains(t, e.Name, "***")
		if e.Failures > 0 {
			sawFailure = true
			assert.True(t, e.Cooling)
		}
		if e.Successes > 0 {
			sawSuccess = true
		}
	}
	assert.True(t, sawFailure)
	assert.True(t, sawSuccess)
}
