package models

import (
	"time"

	"gorm.io/gorm"
)

// AppSettings 应用全局设置
type AppSettings struct {
	gorm.Model
	Port      int    `gorm:"default:8000" json:"port"`
	BackupDir string `gorm:"default:backups" json:"backup_dir"`
}

// User 用户账户
// PasswordHash 格式为 "salt_hex:hash_hex" (PBKDF2-SHA256, 100000 轮)
type User struct {
	gorm.Model
	Username     string     `gorm:"uniqueIndex:idx_username_deleted;not null" json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Preferences  string     `gorm:"default:'{}'" json:"preferences"`

	// 关联关系
	Sections []Section `gorm:"foreignKey:UserID" json:"sections,omitempty"`
	Projects []Project `gorm:"foreignKey:UserID" json:"projects,omitempty"`
}

// Project 项目（一个机器人赛季/课题对应一个项目）
type Project struct {
	gorm.Model
	UserID      uint   `gorm:"index" json:"user_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Sections []Section `gorm:"foreignKey:ProjectID" json:"sections,omitempty"`
}

// Section 笔记本章节
type Section struct {
	gorm.Model
	UserID    uint   `gorm:"index:idx_user_section,unique" json:"user_id"`
	ProjectID *uint  `gorm:"index" json:"project_id,omitempty"`
	Name      string `gorm:"not null;index:idx_user_section,unique" json:"name"`
	Title     string `json:"title"`
	Content   string `gorm:"type:text" json:"content"`
	Tags      string `gorm:"default:'[]'" json:"tags"` // JSON 数组
}

// PlanningSheet 规划表条目
type PlanningSheet struct {
	gorm.Model
	UserID      uint   `gorm:"index" json:"user_id"`
	SectionID   *uint  `json:"section_id,omitempty"`
	SectionName string `json:"section_name"`
	Status      string `gorm:"default:draft" json:"status"` // draft / in_review / final
	Content     string `gorm:"type:text" json:"content"`
	Questions   string `gorm:"default:'[]'" json:"questions"` // JSON 数组
	Decisions   string `gorm:"default:'[]'" json:"decisions"` // JSON 数组
}

// LLMInteraction 一次 LLM 调用的记录
// Degraded 标记响应来自本地模板兜底而非远程模型
type LLMInteraction struct {
	gorm.Model
	UserID     uint    `gorm:"index" json:"user_id"`
	ModelName  string  `json:"model_name"`
	Prompt     string  `gorm:"type:text" json:"prompt"`
	Response   string  `gorm:"type:text" json:"response"`
	TokensUsed int     `gorm:"default:0" json:"tokens_used"`
	Cost       float64 `gorm:"default:0" json:"cost"`
	Degraded   bool    `gorm:"default:false" json:"degraded"`
	DurationMs int64   `json:"duration_ms"`
}

// APICredential 上游 API 凭证
// KeyValue 以 AES-GCM 密文存储，加载时由 SecretProvider 解密
type APICredential struct {
	gorm.Model
	Name     string `json:"name"` // 备注，如 "team key 1"
	KeyValue string `gorm:"not null" json:"key_value"`
}

// RequestLog HTTP 请求日志（异步批量写入）
type RequestLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Duration   int64     `json:"duration"` // 毫秒
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	UserID     uint      `json:"user_id"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
}

// AutoMigrate 自动迁移数据库结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AppSettings{},
		&User{},
		&Project{},
		&Section{},
		&PlanningSheet{},
		&LLMInteraction{},
		&APICredential{},
		&RequestLog{},
	)
}

// InitializeDefaultData 初始化默认数据
func InitializeDefaultData(db *gorm.DB) error {
	var count int64
	db.Model(&AppSettings{}).Count(&count)
	if count == 0 {
		settings := AppSettings{
			Port:      8000,
			BackupDir: "backups",
		}
		if err := db.Create(&settings).Error; err != nil {
			return err
		}
	}
	return nil
}
