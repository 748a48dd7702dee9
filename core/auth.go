package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
	"gorm.io/gorm"

	"notebooker/models"
)

const pbkdf2Iterations = 100000

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// HashPassword 用随机盐做 PBKDF2-SHA256，输出 "盐:哈希" 十六进制格式
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltHex := hex.EncodeToString(salt)
	hash := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, 32, sha256.New)
	return fmt.Sprintf("%s:%s", saltHex, hex.EncodeToString(hash)), nil
}

// VerifyPassword 常量时间比较密码哈希
func VerifyPassword(password, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	saltHex, wantHex := parts[0], parts[1]
	want, err := hex.DecodeString(wantHex)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, 32, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// AuthManager 用户注册登录管理
type AuthManager struct {
	db       *gorm.DB
	sessions *SessionManager
	logger   *logrus.Logger
}

// NewAuthManager 创建认证管理器
func NewAuthManager(db *gorm.DB, sessions *SessionManager, logger *logrus.Logger) *AuthManager {
	return &AuthManager{db: db, sessions: sessions, logger: logger}
}

// Register 注册新用户并直接建立会话
func (am *AuthManager) Register(username, email, password string) (*models.User, string, error) {
	var count int64
	if err := am.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, "", err
	}
	if count > 0 {
		return nil, "", ErrUsernameTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := am.db.Create(&user).Error; err != nil {
		return nil, "", err
	}

	am.logger.Infof("✅ 新用户注册: %s", username)
	token := am.sessions.Create(user.ID, user.Username)
	return &user, token, nil
}

// Login 校验密码并建立会话
func (am *AuthManager) Login(username, password string) (*models.User, string, error) {
	var user models.User
	err := am.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		am.logger.Warnf("⚠️ 登录失败: %s", username)
		return nil, "", ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLogin = &now
	if err := am.db.Model(&user).Update("last_login", now).Error; err != nil {
		am.logger.Warnf("⚠️ 更新登录时间失败: %v", err)
	}

	am.logger.Infof("🔓 用户登录: %s", username)
	token := am.sessions.Create(user.ID, user.Username)
	return &user, token, nil
}

// Logout 销毁会话
func (am *AuthManager) Logout(token string) {
	am.sessions.Destroy(token)
}
