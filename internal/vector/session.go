package vector

import (
	"fmt"
	"sort"
)

// Match is one scored vocabulary entry.
type Match struct {
	Word  string
	Score float64
}

// Session binds a loaded model to a metric. All query state lives on the
// session, so callers can hold sessions over different models side by
// side.
type Session struct {
	Model  *Model
	Metric Metric
}

// NewSession creates a session over model using metric.
func NewSession(m *Model, metric Metric) *Session {
	return &Session{Model: m, Metric: metric}
}

// Similar returns the topN words closest to word. The query word itself
// never appears in the result.
func (s *Session) Similar(word string, topN int) ([]Match, error) {
	vec, ok := s.Model.Vector(word)
	if !ok {
		return nil, fmt.Errorf("'%s'는 사전에 없습니다", word)
	}
	exclude := map[string]struct{}{word: {}}
	return s.rank(vec, topN, exclude), nil
}

// Analogy solves a - b + c and returns the topN words closest to the
// resulting vector, excluding the three inputs.
func (s *Session) Analogy(a, b, c string, topN int) ([]Match, error) {
	va, ok := s.Model.Vector(a)
	if !ok {
		return nil, fmt.Errorf("'%s'는 사전에 없습니다", a)
	}
	vb, ok := s.Model.Vector(b)
	if !ok {
		return nil, fmt.Errorf("'%s'는 사전에 없습니다", b)
	}
	vc, ok := s.Model.Vector(c)
	if !ok {
		return nil, fmt.Errorf("'%s'는 사전에 없습니다", c)
	}

	target := make([]float64, s.Model.Dim)
	for i := range target {
		target[i] = va[i] - vb[i] + vc[i]
	}
	exclude := map[string]struct{}{a: {}, b: {}, c: {}}
	return s.rank(target, topN, exclude), nil
}

// AnalogyLabel names an analogy query the way the results are captioned.
func AnalogyLabel(a, b, c string) string {
	return fmt.Sprintf("%s - %s + %s", a, b, c)
}

// CompareSentences embeds both sentences as the mean of their known word
// vectors and scores them against each other. A sentence with no known
// words scores 0.
func (s *Session) CompareSentences(first, second string) float64 {
	v1, ok1 := s.Model.SentenceVector(first)
	v2, ok2 := s.Model.SentenceVector(second)
	if !ok1 || !ok2 {
		return 0.0
	}
	return s.Metric.Score(v1, v2)
}

// rank scores the whole vocabulary against target and returns the topN
// best matches, skipping excluded words.
func (s *Session) rank(target []float64, topN int, exclude map[string]struct{}) []Match {
	matches := make([]Match, 0, len(s.Model.words))
	for i, word := range s.Model.words {
		if _, skip := exclude[word]; skip {
			continue
		}
		matches = append(matches, Match{Word: word, Score: s.Metric.Score(target, s.Model.vecs[i])})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}
