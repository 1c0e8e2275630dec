package evidencestore

import (
	"testing"

	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

func TestGetObjectKeyFormat(t *testing.T) {
	cfg := &Config{BucketName: "qp-evidence"}

	got := cfg.GetObjectKey("3f7c2b9a", 2026, 5)
	want := "reviews/2026/05/3f7c2b9a.json"
	if got != want {
		t.Fatalf("object key = %q, want %q", got, want)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}

	env.Env["EVIDENCE_ARCHIVE_ENABLED"] = "true"
	env.Env["EVIDENCE_S3_ACCESS_KEY_ID"] = ""
	env.Env["EVIDENCE_S3_SECRET_ACCESS_KEY"] = ""
	env.Env["EVIDENCE_S3_BUCKET_NAME"] = ""
	defer func() {
		env.Env["EVIDENCE_ARCHIVE_ENABLED"] = "false"
	}()

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when archiving is enabled without credentials")
	}

	env.Env["EVIDENCE_S3_ACCESS_KEY_ID"] = "key"
	env.Env["EVIDENCE_S3_SECRET_ACCESS_KEY"] = "secret"
	env.Env["EVIDENCE_S3_BUCKET_NAME"] = "qp-evidence"

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsEnabled() {
		t.Fatalf("expected archiving enabled")
	}
	if cfg.GetBucketName() != "qp-evidence" {
		t.Fatalf("bucket = %q", cfg.GetBucketName())
	}
}
