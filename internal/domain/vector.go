package domain

// Vector is the numeric vector type used from the embedding provider through
// storage and query.
type Vector []float32

// Zero returns a zero-filled vector of width n.
func Zero(n int) Vector {
	return make(Vector, n)
}

// Clone returns a copy of v. A nil vector stays nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// DistanceMetric names the similarity function of a collection.
type DistanceMetric string

const (
	DistanceCosine    DistanceMetric = "cosine"
	DistanceEuclidean DistanceMetric = "euclid"
	DistanceDot       DistanceMetric = "dot"
)
