package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric scores the agreement between two equal-length vectors. Scores
// are oriented so larger always means more similar; distance metrics
// are negated to keep that ordering.
type Metric interface {
	Name() string
	Score(a, b []float64) float64
	IsDistance() bool
}

var metricNames = []string{"cosine", "euclidean", "manhattan", "dot", "correlation"}

// MetricNames lists the valid metric names.
func MetricNames() []string {
	out := make([]string, len(metricNames))
	copy(out, metricNames)
	return out
}

// NewMetric returns the named metric.
func NewMetric(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "cosine":
		return cosineMetric{}, nil
	case "euclidean":
		return euclideanMetric{}, nil
	case "manhattan":
		return manhattanMetric{}, nil
	case "dot":
		return dotMetric{}, nil
	case "correlation":
		return correlationMetric{}, nil
	}
	return nil, fmt.Errorf("unknown metric %q (valid: %s)", name, strings.Join(metricNames, ", "))
}

// Cosine returns the cosine similarity of a and b, or 0 when either
// vector is effectively zero.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom < 1e-12 {
		return 0
	}
	return dot / denom
}

type cosineMetric struct{}

func (cosineMetric) Name() string { return "cosine" }

func (cosineMetric) IsDistance() bool { return false }

func (cosineMetric) Score(a, b []float64) float64 { return Cosine(a, b) }

type euclideanMetric struct{}

func (euclideanMetric) Name() string { return "euclidean" }

func (euclideanMetric) IsDistance() bool { return true }

func (euclideanMetric) Score(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return -math.Sqrt(sum)
}

type manhattanMetric struct{}

func (manhattanMetric) Name() string { return "manhattan" }

func (manhattanMetric) IsDistance() bool { return true }

func (manhattanMetric) Score(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return -sum
}

type dotMetric struct{}

func (dotMetric) Name() string { return "dot" }

func (dotMetric) IsDistance() bool { return false }

func (dotMetric) Score(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// correlationMetric is Pearson correlation: cosine over mean-centered
// vectors.
type correlationMetric struct{}

func (correlationMetric) Name() string { return "correlation" }

func (correlationMetric) IsDistance() bool { return false }

func (correlationMetric) Score(a, b []float64) float64 {
	return Cosine(center(a), center(b))
}

func center(v []float64) []float64 {
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x - mean
	}
	return out
}
