package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agri-platform/internal/insight"
	"agri-platform/internal/llm"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// Fixed replies that never reach the model.
const (
	EmptyQuestionText = "⚠️ Please enter a question first."
	DataMissingText   = "⚠️ Data not available. Please check final_merged_data.csv."
)

// ErrorMarker prefixes every answer produced from a failed model call.
const ErrorMarker = "❌ LLM error:"

// SourcesText is appended to answers when citations are requested.
const SourcesText = "🔗 Source: data.gov.in — IMD Rainfall & Ministry of Agriculture datasets"

// AskOptions tunes a single answer.
type AskOptions struct {
	IncludeSources bool
}

// Answer is the detailed outcome of one question.
type Answer struct {
	Question  string            `json:"question"`
	Text      string            `json:"answer"`
	Detection insight.Detection `json:"detection"`
	Failed    bool              `json:"failed"`
	Duration  time.Duration     `json:"-"`
}

// QAService combines the local dataset summary with the hosted model's reasoning.
// The analyzer is nil when the dataset could not be loaded.
type QAService struct {
	analyzer  *insight.Analyzer
	generator llm.Generator
	timeout   time.Duration
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewQAService creates a new Q&A service
func NewQAService(analyzer *insight.Analyzer, generator llm.Generator, timeout time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *QAService {
	return &QAService{
		analyzer:  analyzer,
		generator: generator,
		timeout:   timeout,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Available reports whether a dataset backs the service.
func (s *QAService) Available() bool {
	return s.analyzer != nil
}

// Answer returns the reply text for question. Failures are reported inside the
// text and never returned as errors.
func (s *QAService) Answer(ctx context.Context, question string) string {
	return s.Ask(ctx, question, AskOptions{}).Text
}

// Ask answers question and reports how the answer was produced.
func (s *QAService) Ask(ctx context.Context, question string, opt AskOptions) Answer {
	start := time.Now()
	question = strings.TrimSpace(question)
	ans := Answer{Question: question}

	if question == "" {
		ans.Text = EmptyQuestionText
		return ans
	}
	if s.analyzer == nil {
		s.metrics.RecordQuestion("no_dataset")
		s.logger.Warn(ctx, "[QA_NO_DATASET] Question received without a dataset", logging.Fields{
			"question": question,
		})
		ans.Text = DataMissingText
		ans.Failed = true
		return ans
	}

	summary := s.analyzer.Summarize(question)
	ans.Detection = summary.Detection
	s.metrics.RecordQuestion(summary.Detection.Outcome())
	s.logger.Info(ctx, "[QA_DETECTED] Question analyzed", logging.Fields{
		"region":    summary.Detection.Region,
		"crop":      summary.Detection.Crop,
		"detection": summary.Detection.Outcome(),
		"has_trend": summary.Trend != nil,
	})

	text, err := s.generate(ctx, BuildPrompt(question, summary.Text))
	ans.Duration = time.Since(start)
	if err != nil {
		s.logger.Error(ctx, "[QA_LLM_ERROR] Model call failed", logging.Fields{
			"question":    question,
			"duration_ms": ans.Duration.Milliseconds(),
			"transient":   llm.IsTransient(err),
		}, err)
		ans.Text = fmt.Sprintf("%s %v", ErrorMarker, err)
		ans.Failed = true
		return ans
	}

	if opt.IncludeSources {
		text += "\n\n" + SourcesText
	}
	ans.Text = text
	s.logger.Info(ctx, "[QA_ANSWERED] Answer generated", logging.Fields{
		"duration_ms": ans.Duration.Milliseconds(),
		"length":      len(text),
	})
	return ans
}

func (s *QAService) generate(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model client panicked: %v", r)
		}
	}()
	if s.generator == nil {
		return "", fmt.Errorf("no model configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err = s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// BuildPrompt frames the question and the local summary for the model.
func BuildPrompt(question, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %q\n\n", question)
	b.WriteString("Here is the summarized agricultural data:\n")
	b.WriteString(summary)
	b.WriteString("\n\nUse this data and your reasoning to provide a clear, concise, and insightful answer\n")
	b.WriteString("(mention trends, insights, and possible implications if relevant).\n")
	return b.String()
}
