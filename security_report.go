package srpflow

import "github.com/MrEthical07/srpflow/internal/security"

// SecurityReport summarises the security-relevant configuration of an
// Engine. Warnings lists settings an operator should review.
type SecurityReport = security.Report

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		AppClientSecret:       e.cfg.UserPool.AppClientSecret,
		DeviceStoreConfigured: e.env.Devices != nil,
		ContextDataConfigured: e.env.ContextData != nil,
		AnalyticsConfigured:   e.env.AnalyticsEndpoint != nil,
		AutoVerifyPassword:    e.cfg.Engine.AutoVerifyPasswordChallenge,
		SignInTimeout:         e.cfg.Engine.SignInTimeout,
		AuditEnabled:          e.audit != nil,
		AuditDropIfFull:       e.cfg.Audit.DropIfFull,
		MetricsEnabled:        e.cfg.Metrics.Enabled,
		LatencyHistograms:     e.cfg.Metrics.EnableLatencyHistograms,
		RecordJournal:         e.cfg.Engine.RecordJournal,
	})
}
