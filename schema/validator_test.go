package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateArticleItemPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"headline":"اخبار السودان اليوم",
		"description":"تقرير عن الاوضاع في الخرطوم",
		"published_at":"2026-03-01 10:00:00",
		"article_url":"https://sudanile.com/news/123",
		"category":"local"
	}`)

	item, err := ValidateArticleItemPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if item.SourceName != "Sudanile" {
		t.Fatalf("expected source_name=Sudanile, got %q", item.SourceName)
	}
	if item.Category == nil || *item.Category != "local" {
		t.Fatalf("expected category=local, got %v", item.Category)
	}
}

func TestValidateArticleItemPayload_MissingHeadline(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"description":"no headline here"
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for missing headline")
	}
}

func TestValidateArticleItemPayload_WhitespaceHeadline(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"headline":"   "
	}`)

	_, err := ValidateArticleItemPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only headline")
	}
	if !strings.Contains(err.Error(), "headline must not be empty") {
		t.Fatalf("expected headline semantic error, got: %v", err)
	}
}

func TestValidateArticleItemPayload_BadCategory(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"headline":"خبر",
		"category":"weather"
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for unknown category")
	}
}

func TestValidateArticleItemPayload_UnknownField(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"headline":"خبر",
		"sentiment":"positive"
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for unknown field")
	}
}

func TestValidateArticleItemPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"source_url":"https://a.com/","source_name":"A","headline":"x"} {}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}

func TestValidateArticleItemPayload_BadArticleURL(t *testing.T) {
	payload := json.RawMessage(`{
		"source_url":"https://sudanile.com/",
		"source_name":"Sudanile",
		"headline":"خبر",
		"article_url":"not a url"
	}`)

	if _, err := ValidateArticleItemPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for malformed article_url")
	}
}
