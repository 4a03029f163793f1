package intent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/conditions"
	"github.com/carelens-ai/platform/pkg/llm"
)

const maxClassificationRounds = 2

// Parser turns natural-language questions into QueryIntents. It never
// returns an error for business reasons; unrecoverable failures degrade to
// a tagged fallback intent.
type Parser struct {
	client llm.Client
	mapper *conditions.Mapper
	now    func() time.Time
}

func NewParser(client llm.Client, mapper *conditions.Mapper) *Parser {
	return &Parser{client: client, mapper: mapper, now: time.Now}
}

// Parse classifies a query. Offline it uses deterministic keyword
// heuristics; online it asks the model up to twice, tightening the prompt
// on the retry, and falls back to an error-tagged intent when both rounds
// fail.
func (p *Parser) Parse(ctx context.Context, query string) QueryIntent {
	if p.client == nil || !p.client.Online() {
		return p.offlineIntent(query)
	}

	var lastErr error
	for round := 1; round <= maxClassificationRounds; round++ {
		prompt := classificationPrompt
		if round > 1 {
			prompt += strictJSONSuffix
		}

		raw, err := p.client.Ask(ctx, prompt, query)
		if err != nil {
			if errors.Is(err, llm.ErrOffline) {
				return p.offlineIntent(query)
			}
			lastErr = err
			logger.Log.WithError(err).WithField("round", round).Warn("intent classification call failed")
			continue
		}

		parsed, err := ParseIntentJSON(stripCodeFences(raw))
		if err != nil {
			lastErr = err
			logger.Log.WithError(err).WithField("round", round).Warn("intent classification returned invalid intent")
			continue
		}

		out := NormalizeFields(parsed)
		out.RawQuery = query
		out = p.applyHeuristics(out)
		out = p.injectConditionFilters(out)
		out = p.stripRedundantFilters(out)
		return out
	}

	message := "intent classification failed"
	if lastErr != nil {
		message = lastErr.Error()
	}
	return QueryIntent{
		AnalysisType: AnalysisUnknown,
		TargetField:  "unknown",
		Parameters:   map[string]interface{}{"error": message},
		RawQuery:     query,
	}
}

var (
	monthNames = map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June,
		"july": time.July, "august": time.August, "september": time.September,
		"october": time.October, "november": time.November, "december": time.December,
	}

	monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december`

	monthToMonthPattern = regexp.MustCompile(`(?i)\bfrom\s+(` + monthAlternation + `)\s*(\d{4})?\s+(?:to|through|until)\s+(` + monthAlternation + `)\s*(\d{4})?`)
	inMonthPattern      = regexp.MustCompile(`(?i)\b(?:in|during)\s+(` + monthAlternation + `)\s*(\d{4})?`)
	weightTrendPattern  = regexp.MustCompile(`(?i)\bweight\b.{0,24}\b(trend|over time|history|progression)\b`)
	weightChangePattern = regexp.MustCompile(`(?i)\bweight\s*(loss|gain|change|lost|gained|changed)\b|\b(lost|gained)\b.{0,16}\bweight\b`)
	activePattern       = regexp.MustCompile(`(?i)\bactive\s+patients?\b`)
	trendWordPattern    = regexp.MustCompile(`(?i)\b(trend|over time|change|changed|progression|trajectory)\b`)
)

// offlineIntent is the deterministic no-credentials path: cheap keyword and
// date-range matching over the raw text, tagged so downstream stages treat
// it as degraded.
func (p *Parser) offlineIntent(query string) QueryIntent {
	fallbackParams := map[string]interface{}{"is_fallback": true}

	if m := monthToMonthPattern.FindStringSubmatch(query); m != nil {
		start, end, ok := p.monthSpan(m[1], m[2], m[3], m[4])
		if ok {
			target := "unknown"
			if strings.Contains(strings.ToLower(query), "weight") {
				target = "weight"
			}
			return QueryIntent{
				AnalysisType: AnalysisTrend,
				TargetField:  target,
				Parameters:   fallbackParams,
				TimeRange:    &DateRange{StartDate: start, EndDate: end},
				RawQuery:     query,
			}
		}
	}

	if weightTrendPattern.MatchString(query) {
		return QueryIntent{
			AnalysisType: AnalysisTrend,
			TargetField:  "weight",
			Parameters:   fallbackParams,
			RawQuery:     query,
		}
	}

	if trendWordPattern.MatchString(query) {
		return QueryIntent{
			AnalysisType: AnalysisTrend,
			TargetField:  "unknown",
			Parameters:   fallbackParams,
			RawQuery:     query,
		}
	}

	return QueryIntent{
		AnalysisType: AnalysisCount,
		TargetField:  "unknown",
		Parameters:   fallbackParams,
		RawQuery:     query,
	}
}

func (p *Parser) monthSpan(startMonth, startYear, endMonth, endYear string) (time.Time, time.Time, bool) {
	sm, okS := monthNames[strings.ToLower(startMonth)]
	em, okE := monthNames[strings.ToLower(endMonth)]
	if !okS || !okE {
		return time.Time{}, time.Time{}, false
	}
	year := p.now().Year()
	sy, ey := year, year
	if startYear != "" {
		fmt.Sscanf(startYear, "%d", &sy)
		ey = sy
	}
	if endYear != "" {
		fmt.Sscanf(endYear, "%d", &ey)
	}
	start := time.Date(sy, sm, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(ey, em, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	if start.After(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// applyHeuristics fixes up classifications the model reliably gets wrong.
// Pure: returns a new intent.
func (p *Parser) applyHeuristics(q QueryIntent) QueryIntent {
	out := q.Clone()
	lowered := strings.ToLower(out.RawQuery)

	if out.AnalysisType == AnalysisCount && activePattern.MatchString(out.RawQuery) && !out.HasFilterOn("active") {
		out.Filters = append(out.Filters, NewValueFilter("active", true))
	}

	if strings.Contains(lowered, "total") && out.AnalysisType != AnalysisCount && out.AnalysisType != AnalysisSum {
		out.AnalysisType = AnalysisCount
	}

	if weightChangePattern.MatchString(out.RawQuery) {
		switch out.AnalysisType {
		case AnalysisAverage, AnalysisUnknown, AnalysisCount:
			out.AnalysisType = AnalysisChange
			if out.TargetField == "unknown" || out.TargetField == "" {
				out.TargetField = "weight"
			}
		}
	}

	if !out.HasDateFilter() {
		if m := inMonthPattern.FindStringSubmatch(out.RawQuery); m != nil {
			if month, ok := monthNames[strings.ToLower(m[1])]; ok {
				year := p.now().Year()
				if m[2] != "" {
					fmt.Sscanf(m[2], "%d", &year)
				}
				start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
				end := start.AddDate(0, 1, -1)
				out.TimeRange = &DateRange{StartDate: start, EndDate: end}
			}
		}
	}

	return out
}

// injectConditionFilters adds a condition filter for every clinical
// condition mentioned in the raw text that the intent does not already
// filter on.
func (p *Parser) injectConditionFilters(q QueryIntent) QueryIntent {
	if p.mapper == nil {
		return q
	}
	detected := p.mapper.DetectConditions(q.RawQuery)
	if len(detected) == 0 {
		return q
	}
	out := q.Clone()
	for _, canonical := range detected {
		already := false
		for _, f := range out.Filters {
			if f.Field != "condition" {
				continue
			}
			if v, ok := f.Value.(string); ok && p.mapper.MatchesTerm(v, canonical) {
				already = true
				break
			}
		}
		if !already {
			out.Filters = append(out.Filters, NewValueFilter("condition", canonical))
		}
	}
	return out
}

// stripRedundantFilters drops non-clinical filters whose value merely
// restates a condition filter already present. Exact term match only;
// substring matching here deletes legitimate filters.
func (p *Parser) stripRedundantFilters(q QueryIntent) QueryIntent {
	if p.mapper == nil {
		return q
	}
	var present []string
	for _, f := range q.Filters {
		if f.Field == "condition" {
			if v, ok := f.Value.(string); ok {
				present = append(present, v)
			}
		}
	}
	if len(present) == 0 {
		return q
	}
	out := q.Clone()
	kept := out.Filters[:0]
	for _, f := range out.Filters {
		redundant := false
		if f.Field != "condition" {
			if v, ok := f.Value.(string); ok {
				for _, canonical := range present {
					if p.mapper.MatchesTerm(v, canonical) {
						redundant = true
						break
					}
				}
			}
		}
		if !redundant {
			kept = append(kept, f)
		}
	}
	out.Filters = kept
	return out
}

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}
