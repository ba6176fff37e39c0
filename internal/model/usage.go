package model

import (
	"time"
)

// CustomDrill 用户自建训练，表结构由外部迁移工具维护，这里只读
type CustomDrill struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (CustomDrill) TableName() string {
	return "custom_drills"
}

// CompletedSession 已完成的训练课，只统计这张表，冥想/心理训练不计入
type CompletedSession struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;index" json:"user_id"`
	Date        time.Time `gorm:"not null;index" json:"date"`
	SessionType string    `gorm:"size:50" json:"session_type"`
}

func (CompletedSession) TableName() string {
	return "completed_sessions"
}
