package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"notebooker/models"
)

// BackupManager 笔记本数据备份
type BackupManager struct {
	db     *gorm.DB
	dir    string
	logger *logrus.Logger
}

// NewBackupManager 创建备份管理器
func NewBackupManager(db *gorm.DB, dir string, logger *logrus.Logger) *BackupManager {
	if dir == "" {
		dir = "backups"
	}
	return &BackupManager{db: db, dir: dir, logger: logger}
}

// backupPayload 备份文件结构
type backupPayload struct {
	CreatedAt time.Time              `json:"created_at"`
	UserID    uint                   `json:"user_id"`
	Sections  []models.Section       `json:"sections"`
	Planning  []models.PlanningSheet `json:"planning_sheets"`
	Projects  []models.Project       `json:"projects"`
}

// Create 导出用户的全部章节/规划/项目为 JSON 文件，返回文件路径
func (bm *BackupManager) Create(userID uint) (string, error) {
	if err := os.MkdirAll(bm.dir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	payload := backupPayload{
		CreatedAt: time.Now(),
		UserID:    userID,
	}
	if err := bm.db.Where("user_id = ?", userID).Find(&payload.Sections).Error; err != nil {
		return "", err
	}
	if err := bm.db.Where("user_id = ?", userID).Find(&payload.Planning).Error; err != nil {
		return "", err
	}
	if err := bm.db.Where("user_id = ?", userID).Find(&payload.Projects).Error; err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	path := filepath.Join(bm.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	bm.logger.Infof("💾 备份完成: %s (%d sections)", path, len(payload.Sections))
	return path, nil
}
