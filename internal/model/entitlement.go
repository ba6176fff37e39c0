package model

import (
	"time"
)

// Status 订阅状态
type Status string

const (
	StatusFree    Status = "free"
	StatusTrial   Status = "trial"
	StatusPremium Status = "premium"
	StatusExpired Status = "expired"
)

// Grants 是否为付费/试用等有效订阅状态
func (s Status) Grants() bool {
	return s == StatusPremium || s == StatusTrial
}

// Plan 订阅套餐
type Plan string

const (
	PlanFree     Plan = "free"
	PlanMonthly  Plan = "monthly"
	PlanYearly   Plan = "yearly"
	PlanLifetime Plan = "lifetime"
)

// Platform 购买来源商店
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform 解析客户端传入的平台
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformIOS, PlatformAndroid:
		return Platform(s), true
	}
	return "", false
}

// Entitlement 每个用户一条，首次访问时创建
type Entitlement struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	UserID           int64      `gorm:"not null;uniqueIndex" json:"user_id"`
	Status           Status     `gorm:"size:50;not null;default:free;index" json:"status"`
	Plan             Plan       `gorm:"column:plan_type;size:50;not null;default:free" json:"plan"`
	StartDate        time.Time  `gorm:"not null" json:"start_date"`
	EndDate          *time.Time `gorm:"index" json:"end_date,omitempty"`
	TrialEndDate     *time.Time `json:"trial_end_date,omitempty"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	Platform         *Platform  `gorm:"size:20" json:"platform,omitempty"`
	ReceiptReference string     `gorm:"column:receipt_data;type:text" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "premium_subscriptions"
}

// Elapsed 当前有效期是否已经结束
func (e *Entitlement) Elapsed(now time.Time) bool {
	switch e.Status {
	case StatusPremium:
		return e.EndDate != nil && e.EndDate.Before(now)
	case StatusTrial:
		if e.TrialEndDate != nil && e.TrialEndDate.Before(now) {
			return true
		}
		return e.EndDate != nil && e.EndDate.Before(now)
	}
	return false
}
