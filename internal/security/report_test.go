package security

import (
	"testing"
	"time"
)

func TestBuildReportFlagsMissingSecretAndJournal(t *testing.T) {
	r := BuildReport(ReportInput{RecordJournal: true, SignInTimeout: time.Second})
	if r.SecretHashEnabled {
		t.Fatal("expected secret hash disabled")
	}
	if len(r.Warnings) != 2 || r.Warnings[0] != WarnNoSecretHash || r.Warnings[1] != WarnJournalSecrets {
		t.Fatalf("unexpected warnings %v", r.Warnings)
	}
}

func TestBuildReportQuietForHardenedConfig(t *testing.T) {
	r := BuildReport(ReportInput{
		AppClientSecret:   "s3cret",
		SignInTimeout:     30 * time.Second,
		AuditEnabled:      true,
		MetricsEnabled:    false,
		LatencyHistograms: true,
	})
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if r.LatencyHistograms {
		t.Fatal("latency histograms require metrics")
	}
	if !r.AuditEnabled || r.AuditMayDrop {
		t.Fatalf("unexpected audit flags %+v", r)
	}
}

func TestBuildReportUnboundedTimeout(t *testing.T) {
	r := BuildReport(ReportInput{AppClientSecret: "x", AuditEnabled: true, AuditDropIfFull: true})
	if !r.SignInUnbounded || !r.AuditMayDrop || len(r.Warnings) != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
}
