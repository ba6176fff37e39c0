package dto

// 字段命名沿用移动端已有的 camelCase 约定

// StatusView 会员状态
type StatusView struct {
	Status       string   `json:"status"`
	Plan         string   `json:"plan"`
	StartDate    *string  `json:"startDate"`
	EndDate      *string  `json:"endDate"`
	TrialEndDate *string  `json:"trialEndDate"`
	IsActive     bool     `json:"isActive"`
	Features     []string `json:"features"`
}

// ValidateView 服务端状态校验结果
type ValidateView struct {
	Status         string `json:"status"`
	LastValidated  string `json:"lastValidated"`
	NextValidation string `json:"nextValidation"`
}

// ValidateRequest 客户端上报的校验请求，字段仅用于审计
type ValidateRequest struct {
	Timestamp  int64  `json:"timestamp"`
	DeviceID   string `json:"deviceId" binding:"omitempty,max=255"`
	AppVersion string `json:"appVersion" binding:"omitempty,max=50"`
}

// PurchaseRequest 收据校验请求
type PurchaseRequest struct {
	Platform      string `json:"platform" binding:"omitempty,oneof=ios android"`
	ReceiptData   string `json:"receiptData" binding:"required"`
	ProductID     string `json:"productId" binding:"required,max=255"`
	TransactionID string `json:"transactionId" binding:"required,max=255"`
}

// PurchaseResult 收据校验结果
type PurchaseResult struct {
	Verified           bool   `json:"verified"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
	ExpiresAt          string `json:"expiresAt,omitempty"`
	Platform           string `json:"platform"`
	Plan               string `json:"plan,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// FeatureAccessRequest 功能访问检查请求
type FeatureAccessRequest struct {
	Feature string `json:"feature" binding:"required,max=100"`
}

// AccessDecision 功能访问决策，拒绝时 Limit 说明原因
type AccessDecision struct {
	CanAccess     bool   `json:"canAccess"`
	Feature       string `json:"feature"`
	RemainingUses *int   `json:"remainingUses"`
	Limit         string `json:"limit"`
}

// UsageView 免费额度使用情况
type UsageView struct {
	CustomDrillsRemaining *int `json:"customDrillsRemaining"`
	SessionsRemaining     *int `json:"sessionsRemaining"`
	CustomDrillsUsed      int  `json:"customDrillsUsed"`
	SessionsUsed          int  `json:"sessionsUsed"`
	IsPremium             bool `json:"isPremium"`
}

// SubscriptionDetails 订阅详情
type SubscriptionDetails struct {
	ID           int64   `json:"id"`
	Status       string  `json:"status"`
	Plan         string  `json:"plan"`
	StartDate    *string `json:"startDate"`
	EndDate      *string `json:"endDate"`
	TrialEndDate *string `json:"trialEndDate"`
	IsActive     bool    `json:"isActive"`
	IsTrial      bool    `json:"isTrial"`
	Platform     *string `json:"platform"`
}
