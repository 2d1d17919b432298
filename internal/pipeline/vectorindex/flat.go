package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidDimension  = errors.New("dimension must be positive")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrCorruptIndex      = errors.New("corrupt index file")
)

// Metric selects how the flat index scores vectors.
type Metric string

const (
	// MetricEuclidean ranks by squared L2 distance, ascending.
	MetricEuclidean Metric = "euclidean"
	// MetricCosine ranks by inner product, descending. Vectors must be
	// L2-normalized for the inner product to equal cosine similarity.
	MetricCosine Metric = "cosine"
)

func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricEuclidean:
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// FlatIndex is a brute-force vector index over fixed-dimension float32
// vectors. Rows are searched exhaustively; for the corpus sizes this
// pipeline handles that is fast enough and keeps the on-disk format
// trivial.
type FlatIndex struct {
	dim     int
	metric  Metric
	vectors [][]float32
}

func NewFlatIndex(dim int, metric Metric) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	return &FlatIndex{dim: dim, metric: metric}, nil
}

// Add appends vectors to the index. Row numbers are assigned in arrival
// order.
func (ix *FlatIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), ix.dim)
		}
	}
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

func (ix *FlatIndex) Len() int       { return len(ix.vectors) }
func (ix *FlatIndex) Dimension() int { return ix.dim }
func (ix *FlatIndex) Metric() Metric { return ix.metric }

type scoredRow struct {
	row   int
	score float32
}

// Search returns the rows of the k best-scoring vectors for the query,
// with their scores. k is clamped to the index size; ties break on the
// lower row number.
func (ix *FlatIndex) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}
	if k <= 0 {
		return nil, nil, nil
	}

	scored := make([]scoredRow, len(ix.vectors))
	for row, v := range ix.vectors {
		scored[row] = scoredRow{row: row, score: ix.score(query, v)}
	}

	better := func(a, b scoredRow) bool {
		if a.score != b.score {
			if ix.metric == MetricEuclidean {
				return a.score < b.score
			}
			return a.score > b.score
		}
		return a.row < b.row
	}
	sort.Slice(scored, func(i, j int) bool { return better(scored[i], scored[j]) })

	rows := make([]int, k)
	scores := make([]float32, k)
	for i := 0; i < k; i++ {
		rows[i] = scored[i].row
		scores[i] = scored[i].score
	}
	return rows, scores, nil
}

func (ix *FlatIndex) score(query, v []float32) float32 {
	var acc float32
	if ix.metric == MetricEuclidean {
		for i := range query {
			d := query[i] - v[i]
			acc += d * d
		}
		return acc
	}
	for i := range query {
		acc += query[i] * v[i]
	}
	return acc
}

// NormalizeL2 scales each vector to unit length in place. Zero vectors
// are left untouched.
func NormalizeL2(vectors [][]float32) {
	for _, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum == 0 {
			continue
		}
		norm := float32(math.Sqrt(sum))
		for i := range v {
			v[i] /= norm
		}
	}
}

const indexMagic = uint32(0x464C4154) // "FLAT"

var metricCodes = map[Metric]uint32{
	MetricEuclidean: 0,
	MetricCosine:    1,
}

// WriteTo serializes the index: a magic number, the metric code, the
// dimension, the row count, then the vectors as little-endian float32s.
func (ix *FlatIndex) WriteTo(w io.Writer) error {
	header := []uint32{indexMagic, metricCodes[ix.metric], uint32(ix.dim), uint32(len(ix.vectors))}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("failed to write index header: %w", err)
		}
	}
	for _, v := range ix.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write index vectors: %w", err)
		}
	}
	return nil
}

// ReadFlatIndex deserializes an index written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	var magic, metricCode, dim, count uint32
	for _, field := range []*uint32{&magic, &metricCode, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("failed to read index header: %w", err)
		}
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}

	var metric Metric
	switch metricCode {
	case 0:
		metric = MetricEuclidean
	case 1:
		metric = MetricCosine
	default:
		return nil, fmt.Errorf("%w: bad metric code %d", ErrCorruptIndex, metricCode)
	}

	ix, err := NewFlatIndex(int(dim), metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	for i := uint32(0); i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: truncated vectors: %v", ErrCorruptIndex, err)
		}
		ix.vectors = append(ix.vectors, v)
	}
	return ix, nil
}
