package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// DefaultSessionTTL 会话有效期 30 天
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session 登录会话
type Session struct {
	UserID    uint
	Username  string
	CreatedAt time.Time
}

// SessionManager 内存会话存储
// 基于带过期的 LRU，进程重启后会话自然失效
type SessionManager struct {
	sessions *expirable.LRU[string, Session]
	logger   *logrus.Logger
}

// NewSessionManager 创建会话管理器
func NewSessionManager(ttl time.Duration, logger *logrus.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		sessions: expirable.NewLRU[string, Session](10000, nil, ttl),
		logger:   logger,
	}
}

// Create 为用户创建新会话，返回会话令牌
func (sm *SessionManager) Create(userID uint, username string) string {
	token := uuid.NewString()
	sm.sessions.Add(token, Session{
		UserID:    userID,
		Username:  username,
		CreatedAt: time.Now(),
	})
	sm.logger.Infof("🔑 会话已创建: user=%s", username)
	return token
}

// Validate 校验令牌，返回会话信息
func (sm *SessionManager) Validate(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	return sm.sessions.Get(token)
}

// Destroy 销毁会话（登出）
func (sm *SessionManager) Destroy(token string) {
	sm.sessions.Remove(token)
}

// Count 当前活跃会话数
func (sm *SessionManager) Count() int {
	return sm.sessions.Len()
}
