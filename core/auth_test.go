package core

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"notebooker/models"
)

func newAuthFixture(t *testing.T) (*AuthManager, *SessionManager, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file:authtest?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, models.AutoMigrate(db))

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	sessions := NewSessionManager(time.Hour, logger)
	return NewAuthManager(db, sessions, logger), sessions, db
}

func TestHashPasswordFormat(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	assert.NoError(t, err)

	parts := strings.Split(hash, ":")
	assert.Len(t, parts, 2)
	assert.Len(t, parts[0], 32) // 16 字节盐的十六进制
	assert.Len(t, parts[1], 64) // 32 字节哈希的十六进制

	// 随机盐：同一密码两次哈希结果不同
	hash2, err := HashPassword("correct horse battery staple")
	assert.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-passw0rd")
	assert.NoError(t, err)

	assert.True(t, VerifyPassword("s3cret-passw0rd", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
	assert.False(t, VerifyPassword("s3cret-passw0rd", "malformed"))
	assert.False(t, VerifyPassword("s3cret-passw0rd", "nothex:nothex"))
}

func TestRegisterAndLogin(t *testing.T) {
	am, sessions, _ := newAuthFixture(t)

	user, token, err := am.Register("alice", "alice@example.com", "password123")
	assert.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, token)

	// 注册即建立会话
	session, ok := sessions.Validate(token)
	assert.True(t, ok)
	assert.Equal(t, user.ID, session.UserID)

	// 重名注册被拒绝
	_, _, err = am.Register("alice", "", "password456")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// 正确密码登录
	loggedIn, loginToken, err := am.Login("alice", "password123")
	assert.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEqual(t, token, loginToken)
	assert.NotNil(t, loggedIn.LastLogin)

	// 错误密码与未知用户都返回同一个错误
	_, _, err = am.Login("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = am.Login("nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	am, sessions, _ := newAuthFixture(t)

	_, token, err := am.Register("bob", "", "password123")
	assert.NoError(t, err)

	_, ok := sessions.Validate(token)
	assert.True(t, ok)

	am.Logout(token)

	_, ok = sessions.Validate(token)
	assert.False(t, ok)
}

func TestPasswordHashNeverStoredPlain(t *testing.T) {
	am, _, db := newAuthFixture(t)

	_, _, err := am.Register("carol", "", "visible-password")
	assert.NoError(t, err)

	var user models.User
	assert.NoError(t, db.Where("username = ?", "carol").First(&user).Error)
	assert.NotContains(t, user.PasswordHash, "visible-password")
}

func TestSessionManagerExpiry(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	sm := NewSessionManager(50*time.Millisecond, logger)
	token := sm.Create(1, "dave")

	_, ok := sm.Validate(token)
	assert.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok = sm.Validate(token)
	assert.False(t, ok)

	_, ok = sm.Validate("")
	assert.False(t, ok)
}
