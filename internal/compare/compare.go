// Package compare measures how much two embedded videos differ. Segments
// are aligned by position on the global timeline and scored pairwise with a
// distance metric; pairs above the threshold are reported as differences.
package compare

import (
	"errors"
	"fmt"
	"math"

	"github.com/sage-video/sage-backend/internal/embed"
)

// Supported distance metrics.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// MaxDistance marks a segment with no counterpart in the other video. It is
// a finite sentinel so reports stay representable in JSON.
const MaxDistance = math.MaxFloat64

// DefaultThreshold is the distance above which an aligned pair counts as a
// difference when the caller does not specify one.
const DefaultThreshold = 0.1

// segmentWidthTolerance is how far apart two aligned segments' widths may be
// before positional alignment stops being meaningful.
const segmentWidthTolerance = 0.25

var (
	ErrUnknownMetric = errors.New("unknown distance metric")

	// ErrWidthMismatch means the two videos were embedded with different
	// clip widths, so position i does not cover the same time span in both.
	ErrWidthMismatch = errors.New("segment widths differ between videos")

	// ErrDimensionMismatch means two aligned vectors have different
	// lengths, which indicates different embedding models.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// Input is one side of a comparison.
type Input struct {
	Filename    string
	DurationSec float64
	Segments    []embed.Segment
}

// Difference is one aligned segment pair whose distance exceeded the
// threshold, or a span present in only one of the two videos.
type Difference struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Distance float64 `json:"distance"`
}

// Stats summarizes the distances of all compared pairs.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Report is the outcome of comparing two videos.
type Report struct {
	Filename1         string       `json:"filename1"`
	Filename2         string       `json:"filename2"`
	Metric            string       `json:"metric"`
	Threshold         float64      `json:"threshold"`
	TotalSegments     int          `json:"total_segments"`
	DifferingSegments int          `json:"differing_segments"`
	Differences       []Difference `json:"differences"`
	Stats             Stats        `json:"stats"`

	// AllDistances carries every scored pair for export; it is omitted
	// from JSON responses to keep them small.
	AllDistances []Difference `json:"-"`
}

// Compare scores two embedded videos pairwise. Segments are aligned by
// index: position i of one video is compared against position i of the
// other. Spans covered by only one video always count as differences.
func Compare(a, b Input, metric string, threshold float64) (*Report, error) {
	dist, err := metricFunc(metric)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Filename1: a.Filename,
		Filename2: b.Filename,
		Metric:    metric,
		Threshold: threshold,
	}

	// A side with no segments has nothing to align; any known span counts
	// as one whole-length difference.
	if len(a.Segments) == 0 || len(b.Segments) == 0 {
		if span := math.Max(a.DurationSec, b.DurationSec); span > 0 {
			report.Differences = []Difference{{
				StartSec: 0,
				EndSec:   span,
				Distance: MaxDistance,
			}}
			report.DifferingSegments = 1
		}
		return report, nil
	}

	if err := checkWidths(a.Segments, b.Segments); err != nil {
		return nil, err
	}

	n := min(len(a.Segments), len(b.Segments))
	report.TotalSegments = n
	report.AllDistances = make([]Difference, 0, n)

	for i := 0; i < n; i++ {
		sa, sb := a.Segments[i], b.Segments[i]
		if len(sa.Embedding) != len(sb.Embedding) {
			return nil, fmt.Errorf("%w: %d vs %d at position %d",
				ErrDimensionMismatch, len(sa.Embedding), len(sb.Embedding), i)
		}

		d := dist(sa.Embedding, sb.Embedding)
		scored := Difference{StartSec: sa.StartSec, EndSec: sa.EndSec, Distance: d}
		report.AllDistances = append(report.AllDistances, scored)
		if d > threshold {
			report.Differences = append(report.Differences, scored)
		}
	}

	// The longer video's tail has no counterpart to compare against. Tail
	// spans already covered by a scored difference are not reported twice.
	scoredDiffs := report.Differences
	longer := a.Segments
	if len(b.Segments) > len(a.Segments) {
		longer = b.Segments
	}
	for i := n; i < len(longer); i++ {
		if overlapsAny(scoredDiffs, longer[i].StartSec, longer[i].EndSec) {
			continue
		}
		report.Differences = append(report.Differences, Difference{
			StartSec: longer[i].StartSec,
			EndSec:   longer[i].EndSec,
			Distance: MaxDistance,
		})
	}

	report.DifferingSegments = len(report.Differences)
	report.Stats = summarize(report.AllDistances)
	return report, nil
}

func metricFunc(metric string) (func(a, b []float32) float64, error) {
	switch metric {
	case MetricCosine:
		return cosineDistance, nil
	case MetricEuclidean:
		return euclideanDistance, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}

// checkWidths rejects comparisons between videos embedded at different clip
// widths. Widths are compared position by position over the aligned prefix.
func checkWidths(a, b []embed.Segment) error {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		wa := a[i].EndSec - a[i].StartSec
		wb := b[i].EndSec - b[i].StartSec
		if math.Abs(wa-wb) > segmentWidthTolerance {
			return fmt.Errorf("%w: %.2fs vs %.2fs at position %d", ErrWidthMismatch, wa, wb, i)
		}
	}
	return nil
}

// cosineDistance is 1 minus the cosine similarity. A zero-norm vector has
// no direction, so the distance defaults to 1.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func overlapsAny(diffs []Difference, start, end float64) bool {
	for _, d := range diffs {
		if start < d.EndSec && end > d.StartSec {
			return true
		}
	}
	return false
}

func summarize(scored []Difference) Stats {
	if len(scored) == 0 {
		return Stats{}
	}
	s := Stats{Min: scored[0].Distance, Max: scored[0].Distance}
	total := 0.0
	for _, d := range scored {
		total += d.Distance
		if d.Distance < s.Min {
			s.Min = d.Distance
		}
		if d.Distance > s.Max {
			s.Max = d.Distance
		}
	}
	s.Mean = total / float64(len(scored))
	return s
}
