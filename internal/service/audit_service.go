package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"gorm.io/datatypes"

	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/repository"
)

// RequestMeta 审计需要的请求信息，由 handler/中间件填充
type RequestMeta struct {
	Endpoint          string
	Method            string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
}

// AuditEntry 一条审计记录
type AuditEntry struct {
	UserID  *int64
	Action  string
	Status  string
	Meta    RequestMeta
	Details map[string]interface{}
}

type AuditService struct {
	auditRepo *repository.AuditRepository
}

func NewAuditService(auditRepo *repository.AuditRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// Log 同步写入审计记录，失败时返回错误，调用方必须中止请求
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	var details datatypes.JSON
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = data
	}

	record := &model.AuditLog{
		UserID:            entry.UserID,
		Action:            clamp(entry.Action, model.AuditActionMaxLen),
		Endpoint:          clamp(entry.Meta.Endpoint, model.AuditEndpointMaxLen),
		Method:            clamp(entry.Meta.Method, model.AuditMethodMaxLen),
		Status:            clamp(entry.Status, model.AuditStatusMaxLen),
		IPAddress:         clamp(entry.Meta.IPAddress, model.AuditIPAddressMaxLen),
		UserAgent:         clamp(entry.Meta.UserAgent, model.AuditUserAgentMaxLen),
		DeviceFingerprint: clamp(entry.Meta.DeviceFingerprint, model.AuditFingerprintMaxLen),
		Details:           details,
	}
	if err := s.auditRepo.Create(ctx, record); err != nil {
		slog.Error("write audit log failed",
			slog.String("action", entry.Action),
			slog.String("status", entry.Status),
			logging.Err(err))
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// clamp 按字符截断到列宽，客户端传来的超长 User-Agent 不能让审计写入失败
func clamp(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func userRef(userID int64) *int64 {
	return &userID
}
