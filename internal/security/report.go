package security

import "time"

type Report struct {
	SecretHashEnabled  bool
	RememberedDevices  bool
	ContextDataEnabled bool
	AnalyticsEnabled   bool
	AutoVerifyPassword bool
	SignInTimeout      time.Duration
	SignInUnbounded    bool
	AuditEnabled       bool
	AuditMayDrop       bool
	MetricsEnabled     bool
	LatencyHistograms  bool
	JournalEnabled     bool
	Warnings           []string
}

type ReportInput struct {
	AppClientSecret       string
	DeviceStoreConfigured bool
	ContextDataConfigured bool
	AnalyticsConfigured   bool
	AutoVerifyPassword    bool
	SignInTimeout         time.Duration
	AuditEnabled          bool
	AuditDropIfFull       bool
	MetricsEnabled        bool
	LatencyHistograms     bool
	RecordJournal         bool
}

const (
	WarnNoSecretHash   = "app client has no secret; SECRET_HASH is not sent"
	WarnUnboundedWait  = "sign-in timeout disabled; callers must bound their own contexts"
	WarnJournalSecrets = "journal is recording; events carry passwords and challenge answers in memory"
	WarnAuditDrops     = "audit dispatcher drops events when its buffer is full"
)

func BuildReport(input ReportInput) Report {
	r := Report{
		SecretHashEnabled:  input.AppClientSecret != "",
		RememberedDevices:  input.DeviceStoreConfigured,
		ContextDataEnabled: input.ContextDataConfigured,
		AnalyticsEnabled:   input.AnalyticsConfigured,
		AutoVerifyPassword: input.AutoVerifyPassword,
		SignInTimeout:      input.SignInTimeout,
		SignInUnbounded:    input.SignInTimeout <= 0,
		AuditEnabled:       input.AuditEnabled,
		AuditMayDrop:       input.AuditEnabled && input.AuditDropIfFull,
		MetricsEnabled:     input.MetricsEnabled,
		LatencyHistograms:  input.MetricsEnabled && input.LatencyHistograms,
		JournalEnabled:     input.RecordJournal,
	}

	if !r.SecretHashEnabled {
		r.Warnings = append(r.Warnings, WarnNoSecretHash)
	}
	if r.SignInUnbounded {
		r.Warnings = append(r.Warnings, WarnUnboundedWait)
	}
	if r.JournalEnabled {
		r.Warnings = append(r.Warnings, WarnJournalSecrets)
	}
	if r.AuditMayDrop {
		r.Warnings = append(r.Warnings, WarnAuditDrops)
	}
	return r
}
