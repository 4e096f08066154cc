package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/docflow/archive"
	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/observability"
	"github.com/hazyhaar/docflow/perplexity"
)

const (
	// enrichContentLimit caps the document text sent for enrichment.
	enrichContentLimit = 4000
	truncationMarker   = "... [content truncated]"

	enrichMaxTokens   = 1000
	enrichTemperature = 0.7

	analysisSystemPrompt  = "You are a document analysis expert. Provide clear, structured analysis without markdown formatting. Use simple bullet points and clear sections."
	recommendSystemPrompt = "You are an expert document analyst providing actionable insights and recommendations. Use simple bullet points and clear sections without markdown formatting."
)

// Analyze runs the first enrichment call: a type-aware summary of the
// document text. Failures (timeout, API error) propagate to the caller.
func (s *Service) Analyze(ctx context.Context, text string, fileType docstore.FileType) (string, error) {
	content := truncate(text, enrichContentLimit, truncationMarker)

	var prompt string
	if fileType == docstore.FileTypeJSON {
		prompt = fmt.Sprintf(`Analyze this JSON document and provide a detailed summary in a clean, structured format without markdown:

Document Structure:
- Describe the overall structure and organization
- List the main components and their purposes
- Explain the data types used
- Describe relationships between components
- Explain the likely purpose of this JSON

Document content:
%s`, content)
	} else {
		prompt = fmt.Sprintf(`Analyze this document and provide a comprehensive summary in a clean, structured format without markdown:

Main Topics:
- List and explain the main topics covered
- Highlight key themes and subjects
- Note any recurring elements

Key Points:
- Extract and summarize the most important points
- Include specific details and numbers
- Note any critical information

Document Type:
- Identify the type of document
- Explain its format and structure
- Note any standard elements

Purpose:
- Explain the main purpose of the document
- Describe its intended audience
- Note any specific goals

Important Details:
- List critical information and data points
- Note any deadlines or dates
- Highlight any requirements or conditions

Document content:
%s`, content)
	}

	return s.enrichCall(ctx, "analysis", analysisSystemPrompt, prompt)
}

// Recommend runs the second enrichment call: actionable recommendations
// derived from the analysis text.
func (s *Service) Recommend(ctx context.Context, analysis string, fileType docstore.FileType) (string, error) {
	var prompt string
	if fileType == docstore.FileTypeJSON {
		prompt = fmt.Sprintf(`Based on this JSON analysis, provide specific recommendations in a clean, structured format without markdown:

Data Structure Improvements:
- List specific structural improvements
- Suggest optimizations
- Note any redundancies

Validation Needs:
- Identify required validations
- Suggest validation rules
- Note any data constraints

Integration Suggestions:
- List potential integration points
- Suggest integration methods
- Note any dependencies

Best Practices:
- List recommended practices
- Suggest improvements
- Note any standards to follow

Security Considerations:
- List security concerns
- Suggest security measures
- Note any vulnerabilities

Analysis:
%s`, analysis)
	} else {
		prompt = fmt.Sprintf(`Based on this document analysis, provide actionable insights in a clean, structured format without markdown:

Key Takeaways:
- List the most important findings
- Highlight critical points
- Note any surprises or concerns

Action Items:
- List specific actions needed
- Assign priorities
- Note any dependencies

Recommendations:
- List specific recommendations
- Explain their benefits
- Note implementation considerations

Next Steps:
- List immediate next steps
- Suggest a timeline
- Note any prerequisites

Additional Considerations:
- List important factors to consider
- Note potential challenges
- Suggest risk mitigation strategies

Analysis:
%s`, analysis)
	}

	return s.enrichCall(ctx, "recommendations", recommendSystemPrompt, prompt)
}

func (s *Service) enrichCall(ctx context.Context, stage, system, prompt string) (string, error) {
	start := time.Now()
	reply, err := s.llm.Complete(ctx, []perplexity.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}, enrichMaxTokens, enrichTemperature)

	if s.metrics != nil {
		s.metrics.Record(&observability.Metric{
			Name:      observability.MetricLLMCallDurationMs,
			Timestamp: time.Now(),
			Value:     float64(time.Since(start).Milliseconds()),
			Labels:    map[string]string{"stage": stage},
			Unit:      "milliseconds",
		})
	}
	if err != nil {
		return "", fmt.Errorf("%s call: %w", stage, err)
	}

	if s.archive != nil {
		if _, aerr := s.archive.Store(prompt, archive.Response{
			Model: s.llm.Model(),
			Text:  reply,
		}, ""); aerr != nil {
			s.logger.Warn("intake: archive write failed", "stage", stage, "error", aerr)
		}
	}

	s.logger.Info("intake: enrichment call complete", "stage", stage, "duration", time.Since(start))
	return reply, nil
}
