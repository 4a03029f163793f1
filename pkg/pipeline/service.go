package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carelens-ai/platform/pkg/analysis"
	"github.com/carelens-ai/platform/pkg/clarify"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/common/models"
	"github.com/carelens-ai/platform/pkg/intent"
	"github.com/carelens-ai/platform/pkg/redact"
)

type eventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service runs the conversational pipeline: parse the question, gate on
// ambiguity, build a plan, execute it, narrate the result. Stages are
// strictly sequential per query; the service itself holds no mutable state
// and is safe for concurrent queries.
type Service struct {
	parser    *intent.Parser
	clarifier *clarify.Clarifier
	gate      *clarify.Gate
	executor  *analysis.Executor
	publisher eventPublisher
	scrubber  *redact.Scrubber
}

type Option func(*Service)

func WithPublisher(p eventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithScrubber masks patient identifiers in the raw question before it
// reaches the parser and, through it, the external language model.
func WithScrubber(sc *redact.Scrubber) Option {
	return func(s *Service) { s.scrubber = sc }
}

func NewService(parser *intent.Parser, clarifier *clarify.Clarifier, gate *clarify.Gate, executor *analysis.Executor, opts ...Option) *Service {
	s := &Service{parser: parser, clarifier: clarifier, gate: gate, executor: executor}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleQuery answers one natural-language question. It never returns nil:
// every failure mode lands in the response as either clarifying questions
// or an error block, never as a raw error to the transport layer.
func (s *Service) HandleQuery(ctx context.Context, query string) *models.QueryResponse {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return &models.QueryResponse{Query: query, Error: "query is empty"}
	}

	if scrubbed, findings := s.scrubber.Scrub(query); len(findings) > 0 {
		for _, f := range findings {
			logger.WithFields(logrus.Fields{
				"type":  f.Type,
				"count": f.Count,
			}).Warn("identifier scrubbed from query")
		}
		query = scrubbed
	}

	q := s.parser.Parse(ctx, query)
	outcome := intent.Parsed(q)

	if s.gate.IsTrulyAmbiguous(outcome) {
		_, questions := s.clarifier.SpecificClarification(outcome, query)
		if len(questions) == 0 {
			for _, slot := range s.clarifier.IdentifySlots(outcome, query) {
				questions = append(questions, slot.Question)
			}
		}
		if len(questions) == 0 {
			questions = []string{"Could you rephrase the question, naming the metric and the kind of analysis you want?"}
		}
		return &models.QueryResponse{
			Query:              query,
			NeedsClarification: true,
			Questions:          questions,
			Elapsed:            time.Since(start).String(),
		}
	}

	plan := analysis.BuildPlan(q)
	result := s.executor.Execute(ctx, plan)

	resp := &models.QueryResponse{
		Query:   query,
		Result:  result,
		Summary: narrate(q, plan, result),
		Error:   result.Error,
		Elapsed: time.Since(start).String(),
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, "query.completed", "assistant-service", map[string]interface{}{
			"query":     query,
			"plan_kind": string(plan.Kind),
			"failed":    result.Failed(),
		}); err != nil {
			logger.Log.WithError(err).Warn("query event not published")
		}
	}

	logger.WithFields(logrus.Fields{
		"plan_kind": string(plan.Kind),
		"failed":    result.Failed(),
		"elapsed":   resp.Elapsed,
	}).Info("query handled")
	return resp
}

// narrate builds the one-line narrative for a result. Failures narrate as
// a friendly error block, never a stack trace.
func narrate(q intent.QueryIntent, plan analysis.Plan, result *analysis.Result) string {
	if result.Failed() {
		return "I couldn't answer that: " + result.Error
	}

	field := displayField(plan.TargetField)
	switch plan.Kind {
	case analysis.PlanAggregate, analysis.PlanFallback:
		if result.Value == nil {
			return fmt.Sprintf("No %s data matched the query.", field)
		}
		if plan.Aggregate != nil && plan.Aggregate.SQLFunc == "COUNT" {
			return fmt.Sprintf("Found %d matching %s records.", int(*result.Value), field)
		}
		return fmt.Sprintf("The %s %s is %.2f.", q.AnalysisType, field, *result.Value)
	case analysis.PlanTrend:
		return fmt.Sprintf("Trend of %s across %d periods.", field, result.Count)
	case analysis.PlanTopN:
		return fmt.Sprintf("Top %d results by %s.", result.Count, field)
	case analysis.PlanHistogram:
		return fmt.Sprintf("Distribution of %s over %d observations.", field, result.Count)
	case analysis.PlanComparison:
		return fmt.Sprintf("Comparison of %s across %d groups.", field, result.Count)
	case analysis.PlanChange:
		if result.Value == nil {
			return fmt.Sprintf("No measurable %s change.", field)
		}
		unit := ""
		if plan.Change != nil && plan.Change.Percent {
			unit = "%"
		}
		return fmt.Sprintf("Average %s change of %.2f%s across %d patients.", field, *result.Value, unit, result.Count)
	case analysis.PlanCorrelation:
		if result.Value != nil {
			return fmt.Sprintf("Correlation coefficient for %s: %.3f over %d pairs.", field, *result.Value, result.Count)
		}
		return fmt.Sprintf("Correlation of %s computed per group.", field)
	}
	return "Analysis complete."
}

func displayField(field string) string {
	switch field {
	case "sbp":
		return "systolic blood pressure"
	case "dbp":
		return "diastolic blood pressure"
	case "bmi":
		return "BMI"
	case "patient_id":
		return "patient"
	default:
		return strings.ReplaceAll(field, "_", " ")
	}
}
