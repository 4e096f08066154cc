package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/idgen"
	"github.com/hazyhaar/docflow/perplexity"
)

var (
	fromRe     = regexp.MustCompile(`(?m)^From:[ \t]*(.*)$`)
	subjectRe  = regexp.MustCompile(`(?m)^Subject:[ \t]*(.*)$`)
	threadIDRe = regexp.MustCompile(`(?m)^Thread-Id:[ \t]*(.*)$`)
)

// analysisSchema constrains the shape the LLM must return for an email:
// the three keys are mandatory, intent and urgency are closed enums.
var analysisSchema = jsonschema.MustCompileString("email-analysis.json", `{
	"type": "object",
	"required": ["intent", "urgency", "summary"],
	"properties": {
		"intent": {"enum": ["Invoice", "RFQ", "Complaint", "Regulation", "Other"]},
		"urgency": {"enum": ["High", "Medium", "Low"]},
		"summary": {"type": "string"}
	}
}`)

// fallbackAnalysis is substituted whenever the LLM response cannot be
// parsed or fails shape validation. The response is never executed; it is
// parsed strictly as JSON.
var fallbackAnalysis = EmailAnalysis{
	Intent:  docstore.IntentOther,
	Urgency: "Medium",
	Summary: "Failed to analyze email content",
}

// EmailHandler extracts headers and a thread id from email-like text and
// requests a structured analysis from the LLM.
type EmailHandler struct {
	llm    *perplexity.Client
	newID  idgen.Generator
	logger *slog.Logger
}

// NewEmailHandler creates the email document handler.
func NewEmailHandler(llm *perplexity.Client, newID idgen.Generator, logger *slog.Logger) *EmailHandler {
	if newID == nil {
		newID = idgen.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{llm: llm, newID: newID, logger: logger}
}

// Process extracts headers, analyzes content and resolves a thread id.
func (h *EmailHandler) Process(ctx context.Context, content string, cls *Classification) (any, error) {
	return &EmailResult{
		Headers:  ExtractHeaders(content),
		Analysis: h.analyze(ctx, content),
		ThreadID: h.extractThreadID(content),
		DocID:    cls.DocID,
	}, nil
}

// ExtractHeaders pulls the first From: and Subject: header values, trimmed.
// A missing header simply leaves its key out of the map.
func ExtractHeaders(content string) map[string]string {
	headers := map[string]string{}
	if m := fromRe.FindStringSubmatch(content); m != nil {
		headers["sender"] = strings.TrimSpace(m[1])
	}
	if m := subjectRe.FindStringSubmatch(content); m != nil {
		headers["subject"] = strings.TrimSpace(m[1])
	}
	return headers
}

func (h *EmailHandler) analyze(ctx context.Context, content string) EmailAnalysis {
	prompt := fmt.Sprintf(`Analyze this email content and extract:
1. Intent (Invoice, RFQ, Complaint, Regulation, Other)
2. Urgency level (High, Medium, Low)
3. A brief summary (max 2 sentences)

Email content:
%s

Respond in JSON format with keys: intent, urgency, summary`, truncate(content, classifyPromptLimit, ""))

	reply, err := h.llm.Complete(ctx, []perplexity.Message{
		{Role: "user", Content: prompt},
	}, 150, 0)
	if err != nil {
		h.logger.Warn("intake: email analysis call failed", "error", err)
		return fallbackAnalysis
	}

	analysis, err := parseAnalysis(reply)
	if err != nil {
		h.logger.Warn("intake: email analysis unparsable", "error", err)
		return fallbackAnalysis
	}
	return analysis
}

// parseAnalysis decodes the LLM reply strictly as JSON and checks it
// against the analysis schema.
func parseAnalysis(reply string) (EmailAnalysis, error) {
	raw := strings.TrimSpace(reply)

	var shape any
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return EmailAnalysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	if err := analysisSchema.Validate(shape); err != nil {
		return EmailAnalysis{}, fmt.Errorf("analysis shape: %w", err)
	}

	var analysis EmailAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return EmailAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	return analysis, nil
}

// extractThreadID prefers an explicit Thread-Id header, then a stable
// hash of the subject so thread grouping is reproducible across runs,
// then a fresh random id.
func (h *EmailHandler) extractThreadID(content string) string {
	if m := threadIDRe.FindStringSubmatch(content); m != nil {
		if id := strings.TrimSpace(m[1]); id != "" {
			return id
		}
	}
	if m := subjectRe.FindStringSubmatch(content); m != nil {
		return SubjectThreadID(strings.TrimSpace(m[1]))
	}
	return h.newID()
}

// SubjectThreadID derives a deterministic thread id from a subject line.
func SubjectThreadID(subject string) string {
	hash := fnv.New64a()
	hash.Write([]byte(subject))
	return fmt.Sprintf("thread_%016x", hash.Sum64())
}
