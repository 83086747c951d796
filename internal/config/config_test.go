package config

import "testing"

func TestValidateRejectsBadEntityJSONMode(t *testing.T) {
	t.Parallel()

	cfg := Config{
		DatabaseURL:                 "postgres://localhost/blindspot",
		DBMinConns:                  1,
		DBMaxConns:                  8,
		EntityJSONMode:              "yaml",
		SimilarityThreshold:         0.5,
		TimeWindowHours:             72,
		UnclusteredLookbackHours:    168,
		TrendingLookbackHours:       48,
		NotificationSourceThreshold: 10,
		LockFile:                    "blindspot.lock",
		HTTPPort:                    8090,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation to reject ENTITY_JSON_MODE=yaml")
	}

	cfg.EntityJSONMode = "text"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected text mode to validate, got %v", err)
	}
}

func TestGeminiAPIKeyListSplitsAndDeduplicates(t *testing.T) {
	t.Parallel()

	cfg := Config{GeminiAPIKeys: " key-a, key-b ,key-a,, key-c "}
	keys := cfg.GeminiAPIKeyList()
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
	if keys[0] != "key-a" || keys[1] != "key-b" || keys[2] != "key-c" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

func TestGeminiAPIKeyListEmpty(t *testing.T) {
	t.Parallel()

	cfg := Config{GeminiAPIKeys: " , "}
	if keys := cfg.GeminiAPIKeyList(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}
