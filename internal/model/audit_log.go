package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审计状态标签
const (
	AuditStatusBlockedMissingFingerprint = "blocked_missing_fingerprint"
	AuditStatusRateLimited               = "rate_limited"
	AuditStatusVerificationFailed        = "verification_failed"
	AuditStatusVerificationTimeout       = "verification_timeout"
	AuditStatusSuccess                   = "success"
	AuditStatusError                     = "error"
)

// 审计字段的列宽，写入前按字符截断
const (
	AuditActionMaxLen      = 100
	AuditEndpointMaxLen    = 255
	AuditMethodMaxLen      = 10
	AuditStatusMaxLen      = 50
	AuditIPAddressMaxLen   = 64
	AuditUserAgentMaxLen   = 512
	AuditFingerprintMaxLen = 255
)

// AuditLog 安全相关决策的只追加记录，插入后不再修改
type AuditLog struct {
	ID                uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID            *int64         `gorm:"index" json:"user_id,omitempty"`
	Action            string         `gorm:"size:100;not null;index" json:"action"`
	Endpoint          string         `gorm:"size:255;not null" json:"endpoint"`
	Method            string         `gorm:"size:10;not null" json:"method"`
	Status            string         `gorm:"size:50;not null;index" json:"status"`
	IPAddress         string         `gorm:"size:64" json:"ip_address"`
	UserAgent         string         `gorm:"size:512" json:"user_agent"`
	DeviceFingerprint string         `gorm:"size:255" json:"device_fingerprint"`
	Details           datatypes.JSON `json:"details"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
