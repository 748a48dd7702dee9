package core

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"notebooker/models"
)

func TestBackupCreateExportsUserData(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:backuptest?mode=memory&cache=shared"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, models.AutoMigrate(db))

	db.Create(&models.Section{UserID: 1, Name: "system_overview", Content: "drive base and arm"})
	db.Create(&models.Section{UserID: 1, Name: "sensors", Content: "IMU and encoders"})
	db.Create(&models.Section{UserID: 2, Name: "system_overview", Content: "someone else's robot"})
	db.Create(&models.PlanningSheet{UserID: 1, SectionName: "sensors", Status: "in_review"})

	bm := NewBackupManager(db, t.TempDir(), quietLogger())

	path, err := bm.Create(1)
	assert.NoError(t, err)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)

	var payload struct {
		UserID   uint                   `json:"user_id"`
		Sections []models.Section       `json:"sections"`
		Planning []models.PlanningSheet `json:"planning_sheets"`
	}
	assert.NoError(t, json.Unmarshal(data, &payload))

	// 只导出指定用户的数据
	assert.Equal(t, uint(1), payload.UserID)
	assert.Len(t, payload.Sections, 2)
	assert.Len(t, payload.Planning, 1)
	for _, s := range payload.Sections {
		assert.Equal(t, uint(1), s.UserID)
	}
}
