package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/gateway/httpclient"
	"github.com/carelens-ai/platform/pkg/llm"
)

// aiConfidenceThreshold is the minimum confidence at which an AI code
// lookup is trusted over "ask the user".
const aiConfidenceThreshold = 0.6

var bmiPattern = regexp.MustCompile(`(?i)\bbmi\b[^0-9]{0,12}(\d{2,3}(?:\.\d+)?)`)

// Mapper resolves free-text clinical condition phrases to canonical terms
// and diagnosis codes. It is constructed once at startup with an explicit
// catalog; there is no package-level state.
type Mapper struct {
	catalog  Catalog
	client   llm.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

type Option func(*Mapper)

// WithAILookup enables the LLM fallback for terms outside the catalog.
func WithAILookup(client llm.Client) Option {
	return func(m *Mapper) { m.client = client }
}

// WithCache caches AI code lookups in redis.
func WithCache(cache *redis.Client, ttl time.Duration) Option {
	return func(m *Mapper) {
		m.cache = cache
		m.cacheTTL = ttl
	}
}

func NewMapper(catalog Catalog, opts ...Option) *Mapper {
	m := &Mapper{catalog: catalog, cacheTTL: 24 * time.Hour}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Canonical maps a free-text term to its canonical condition name. Exact
// catalog match wins, then substring match in both directions, then a
// numeric BMI-threshold heuristic for phrases like "bmi 32".
func (m *Mapper) Canonical(term string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(term))
	if key == "" {
		return "", false
	}

	if mapping, ok := m.catalog.Lookup(key); ok {
		return mapping.Canonical, true
	}
	for _, mapping := range m.catalog.Conditions {
		for _, syn := range mapping.Synonyms {
			if strings.EqualFold(syn, key) {
				return mapping.Canonical, true
			}
		}
	}

	for name, mapping := range m.catalog.Conditions {
		if strings.Contains(key, name) || (len(key) >= 4 && strings.Contains(name, key)) {
			return mapping.Canonical, true
		}
		for _, syn := range mapping.Synonyms {
			lowered := strings.ToLower(syn)
			if strings.Contains(key, lowered) || (len(key) >= 4 && strings.Contains(lowered, key)) {
				return mapping.Canonical, true
			}
		}
	}

	if canonical, ok := bmiThresholdCondition(key); ok {
		return canonical, true
	}

	return "", false
}

func bmiThresholdCondition(term string) (string, bool) {
	match := bmiPattern.FindStringSubmatch(term)
	if len(match) != 2 {
		return "", false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return "", false
	}
	switch {
	case value >= 40:
		return "morbid_obesity", true
	case value >= 30:
		return "obesity", true
	case value >= 25:
		return "overweight", true
	default:
		return "", false
	}
}

// ICDCodes returns the diagnosis codes for a condition. Generic obesity
// queries include the narrower obesity-family codes so records coded either
// way are caught. Unknown conditions fall back to an AI lookup when one is
// configured.
func (m *Mapper) ICDCodes(ctx context.Context, condition string) ([]string, error) {
	canonical, ok := m.Canonical(condition)
	if ok {
		if canonical == "obesity" {
			return m.obesityFamilyCodes(), nil
		}
		if mapping, found := m.catalog.Lookup(canonical); found {
			return append([]string(nil), mapping.Codes...), nil
		}
	}

	if m.client == nil || !m.client.Online() {
		return nil, fmt.Errorf("no code mapping for condition %q", condition)
	}
	return m.aiLookup(ctx, condition)
}

func (m *Mapper) obesityFamilyCodes() []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, name := range []string{"obesity", "morbid_obesity", "overweight"} {
		mapping, ok := m.catalog.Lookup(name)
		if !ok {
			continue
		}
		for _, code := range mapping.Codes {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}

// DetectConditions scans free text for catalog conditions, returning the
// canonical names in first-appearance order.
func (m *Mapper) DetectConditions(text string) []string {
	lowered := strings.ToLower(text)
	type hit struct {
		pos       int
		canonical string
	}
	var hits []hit
	seen := make(map[string]struct{})

	record := func(pos int, canonical string) {
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}
		hits = append(hits, hit{pos: pos, canonical: canonical})
	}

	for name, mapping := range m.catalog.Conditions {
		needle := strings.ReplaceAll(name, "_", " ")
		if pos := strings.Index(lowered, needle); pos >= 0 {
			record(pos, mapping.Canonical)
			continue
		}
		for _, syn := range mapping.Synonyms {
			if pos := strings.Index(lowered, strings.ToLower(syn)); pos >= 0 {
				record(pos, mapping.Canonical)
				break
			}
		}
	}

	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.canonical)
	}
	return out
}

// MatchesTerm reports whether a free-text value restates the given
// canonical condition exactly (name or synonym, case-insensitive).
func (m *Mapper) MatchesTerm(value, canonical string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	if v == canonical || v == strings.ReplaceAll(canonical, "_", " ") {
		return true
	}
	mapping, ok := m.catalog.Lookup(canonical)
	if !ok {
		return false
	}
	for _, syn := range mapping.Synonyms {
		if strings.EqualFold(syn, v) {
			return true
		}
	}
	return false
}

// ShouldAskClarifyingQuestion reports whether the assistant must confirm a
// condition term with the user before filtering on it. Unknown terms always
// ask, even when an AI lookup is available; clinicians confirm codes the
// catalog has never seen.
func (m *Mapper) ShouldAskClarifyingQuestion(term string) bool {
	_, ok := m.Canonical(term)
	return !ok
}

type aiCodeAnswer struct {
	Codes      []string `json:"codes"`
	Confidence float64  `json:"confidence"`
}

const codeLookupPrompt = `You are a medical coding assistant. Given a clinical condition phrase, respond with only a JSON object: {"codes": ["<ICD-10 code>", ...], "confidence": <0.0-1.0>}. Use an empty list and low confidence if the phrase is not a recognizable condition.`

func (m *Mapper) aiLookup(ctx context.Context, condition string) ([]string, error) {
	cacheKey := "condition:codes:" + strings.ToLower(strings.TrimSpace(condition))
	if m.cache != nil {
		if cached, err := m.cache.Get(ctx, cacheKey).Result(); err == nil {
			var answer aiCodeAnswer
			if json.Unmarshal([]byte(cached), &answer) == nil && len(answer.Codes) > 0 {
				return answer.Codes, nil
			}
		}
	}

	var raw string
	err := httpclient.Retry(ctx, 2, 200*time.Millisecond, func() error {
		var askErr error
		raw, askErr = m.client.Ask(ctx, codeLookupPrompt, condition)
		return askErr
	})
	if err != nil {
		return nil, fmt.Errorf("ai code lookup failed: %w", err)
	}

	var answer aiCodeAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return nil, fmt.Errorf("ai code lookup returned non-JSON answer: %w", err)
	}
	if answer.Confidence < aiConfidenceThreshold || len(answer.Codes) == 0 {
		return nil, fmt.Errorf("ai code lookup below confidence threshold (%.2f) for %q", answer.Confidence, condition)
	}

	if m.cache != nil {
		if encoded, err := json.Marshal(answer); err == nil {
			if err := m.cache.Set(ctx, cacheKey, encoded, m.cacheTTL).Err(); err != nil {
				logger.Log.WithError(err).Warn("failed to cache condition code lookup")
			}
		}
	}

	return answer.Codes, nil
}
