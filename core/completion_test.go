package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestClient(serverURL string) *OpenRouterClient {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewOpenRouterClient(serverURL, 4000, logger)
}

func completionJSON(content string) string {
	return `{"id":"gen-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionJSON("  hello world\\n")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	text, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)
	assert.NoError(t, err)
	// 内容应去除首尾空白
	assert.Equal(t, "hello world", text)
}

func TestCompleteAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "bad-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)

	var ae *AttemptError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureAuth, ae.Kind)
	assert.Equal(t, 401, ae.Status)
}

func TestCompleteProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		w.Write([]byte("upstream overloaded"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)

	var ae *AttemptError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureProvider, ae.Kind)
	assert.Equal(t, 503, ae.Status)
	assert.Contains(t, ae.Detail, "upstream overloaded")
}

func TestCompleteProviderErrorDetailTruncated(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write(long)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)

	var ae *AttemptError
	assert.ErrorAs(t, err, &ae)
	assert.Len(t, ae.Detail, 200)
}

func TestCompleteProtocolError(t *testing.T) {
	cases := map[string]string{
		"not json":     "<html>oops</html>",
		"no choices":   `{"id":"gen-1","choices":[]}`,
		"null choices": `{"id":"gen-1"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)

			var ae *AttemptError
			assert.ErrorAs(t, err, &ae)
			assert.Equal(t, FailureProtocol, ae.Kind)
		})
	}
}

func TestCompleteNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 立即关掉，触发连接错误

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 5*time.Second)

	var ae *AttemptError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureNetwork, ae.Kind)
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(completionJSON("late")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "test-key", "some/model", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 50*time.Millisecond)

	var ae *AttemptError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureNetwork, ae.Kind)
}

func TestCompleteInvalidRequest(t *testing.T) {
	client := newTestClient("http://localhost:1")

	_, err := client.Complete(context.Background(), "k", "m", CompletionRequest{Prompt: "hi", MaxTokens: 100}, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = client.Complete(context.Background(), "k", "m", CompletionRequest{Prompt: "hi", MaxTokens: 0}, time.Second)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = client.Complete(context.Background(), "k", "m", CompletionRequest{Prompt: "hi", MaxTokens: 4001}, time.Second)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
