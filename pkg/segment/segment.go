// Package segment clusters customers on standardized behavioural columns and
// exposes the cluster label as an extra feature.
package segment

import (
	"fmt"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"churn/pkg/core"
	"churn/pkg/data"
	"churn/pkg/model"
	"churn/pkg/stats"
)

// ClusterFeature names the appended cluster column.
const ClusterFeature = "Customer_Cluster"

const (
	DefaultK       = 4
	DefaultMaxK    = 9
	defaultMaxIter = 300
	defaultNInit   = 10
)

// ClusterColumns are the behavioural columns the segmentation runs on.
func ClusterColumns() []string {
	return []string{
		"Total_Trans_Amt",
		"Total_Trans_Ct",
		"Avg_Utilization_Ratio",
		"Credit_Limit",
		"Months_Inactive_12_mon",
	}
}

// Segmenter is a frozen clustering: the column positions it reads, the
// scaler fitted on the clustered rows and the final centroids.
type Segmenter struct {
	Columns   []string
	Index     []int
	Scaler    *stats.StandardScaler
	Centroids [][]float64
	Inertia   float64
}

// K returns the number of clusters.
func (s *Segmenter) K() int { return len(s.Centroids) }

func columnIndex(m *data.Matrix, cols []string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i] = m.Index(c); idx[i] < 0 {
			return nil, &core.SchemaError{Column: c, Row: -1, Reason: "clustering column not in matrix"}
		}
	}
	return idx, nil
}

func project(m *data.Matrix, idx []int) [][]float64 {
	out := make([][]float64, m.Rows())
	for i, row := range m.X {
		out[i] = make([]float64, len(idx))
		for j, c := range idx {
			out[i][j] = row[c]
		}
	}
	return out
}

func fitKMeans(X [][]float64, k int, seed int64) (*model.KMeans, error) {
	km := model.NewKMeans(k, defaultMaxIter)
	km.NInit = defaultNInit
	km.RandomState = seed
	if err := km.Fit(X); err != nil {
		return nil, errors.Annotatef(err, "kmeans k=%d", k)
	}
	return km, nil
}

// Fit clusters the rows of m into k groups.
func Fit(m *data.Matrix, k int, seed int64) (*Segmenter, error) {
	idx, err := columnIndex(m, ClusterColumns())
	if err != nil {
		return nil, err
	}
	scaler := stats.NewStandardScaler()
	scaled, err := scaler.FitTransform(project(m, idx))
	if err != nil {
		return nil, errors.Trace(err)
	}
	km, err := fitKMeans(scaled, k, seed)
	if err != nil {
		return nil, err
	}
	return &Segmenter{
		Columns:   ClusterColumns(),
		Index:     idx,
		Scaler:    scaler,
		Centroids: km.Centroids,
		Inertia:   km.Inertia,
	}, nil
}

// clusterer rebuilds the frozen k-means model from the stored centroids.
func (s *Segmenter) clusterer() model.Clusterer {
	return &model.KMeans{K: s.K(), Centroids: s.Centroids}
}

func (s *Segmenter) scale(x []float64) []float64 {
	row := make([]float64, len(s.Index))
	for j, c := range s.Index {
		row[j] = (x[c] - s.Scaler.Mean[j]) / s.Scaler.Std[j]
	}
	return row
}

// Label returns the 1-based cluster of one encoded feature vector.
func (s *Segmenter) Label(x []float64) (int, error) {
	for _, c := range s.Index {
		if c >= len(x) {
			return 0, &core.SchemaError{Column: s.Columns[0], Row: -1, Reason: "feature vector too short for clustering columns"}
		}
	}
	labels, err := s.clusterer().Predict([][]float64{s.scale(x)})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return labels[0] + 1, nil
}

// Assign labels every row of m with the frozen scaler and centroids.
func (s *Segmenter) Assign(m *data.Matrix) ([]int, error) {
	for j, c := range s.Columns {
		if s.Index[j] >= len(m.Features) || m.Features[s.Index[j]] != c {
			return nil, &core.SchemaError{Column: c, Row: -1, Reason: "clustering column moved or missing"}
		}
	}
	if m.Rows() == 0 {
		return []int{}, nil
	}
	scaled := make([][]float64, m.Rows())
	for i, row := range m.X {
		scaled[i] = s.scale(row)
	}
	labels, err := s.clusterer().Predict(scaled)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := range labels {
		labels[i]++
	}
	return labels, nil
}

// Append returns a copy of m with the cluster label as a final column.
func (s *Segmenter) Append(m *data.Matrix) (*data.Matrix, []int, error) {
	labels, err := s.Assign(m)
	if err != nil {
		return nil, nil, err
	}
	out := m.Clone()
	out.Features = append(out.Features, ClusterFeature)
	out.Kinds = append(out.Kinds, data.KindCluster)
	for i := range out.X {
		out.X[i] = append(out.X[i], float64(labels[i]))
	}
	return out, labels, nil
}

// Segment fits a k-cluster Segmenter on m and returns m with the cluster
// column appended.
func Segment(m *data.Matrix, k int, seed int64) (*data.Matrix, *Segmenter, error) {
	s, err := Fit(m, k, seed)
	if err != nil {
		return nil, nil, err
	}
	out, _, err := s.Append(m)
	if err != nil {
		return nil, nil, err
	}
	return out, s, nil
}

// ElbowResult holds inertia for k = 1..len(Inertia).
type ElbowResult struct {
	K         []int
	Inertia   []float64
	Suggested int // advisory only
}

// Elbow fits k-means for every k from 1 to maxK and suggests the k where the
// inertia curve bends most (largest second difference, earliest on ties).
func Elbow(m *data.Matrix, maxK int, seed int64) (*ElbowResult, error) {
	if maxK < 1 {
		return nil, errors.NotValidf("elbow max k %d", maxK)
	}
	if maxK > m.Rows() {
		return nil, errors.Errorf("elbow max k %d exceeds %d rows", maxK, m.Rows())
	}
	idx, err := columnIndex(m, ClusterColumns())
	if err != nil {
		return nil, err
	}
	scaled, err := stats.NewStandardScaler().FitTransform(project(m, idx))
	if err != nil {
		return nil, errors.Trace(err)
	}

	res := &ElbowResult{K: make([]int, maxK), Inertia: make([]float64, maxK)}
	var g errgroup.Group
	for i := 0; i < maxK; i++ {
		i := i
		g.Go(func() error {
			km, err := fitKMeans(scaled, i+1, seed)
			if err != nil {
				return err
			}
			res.K[i], res.Inertia[i] = i+1, km.Inertia
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Suggested = maxK
	if maxK >= 3 {
		best := -1.0
		for i := 1; i+1 < maxK; i++ {
			if d2 := res.Inertia[i-1] - 2*res.Inertia[i] + res.Inertia[i+1]; d2 > best {
				best, res.Suggested = d2, i+1
			}
		}
	}
	return res, nil
}

// ClusterProfile is the per-cluster mean of the clustering columns.
type ClusterProfile struct {
	Cluster int
	Size    int
	Means   map[string]float64
}

func (p ClusterProfile) String() string {
	return fmt.Sprintf("cluster %d (n=%d) %v", p.Cluster, p.Size, p.Means)
}

// Profile averages the clustering columns of m per label. Labels are 1-based;
// clusters with no members are omitted.
func Profile(m *data.Matrix, labels []int) ([]ClusterProfile, error) {
	if len(labels) != m.Rows() {
		return nil, errors.Errorf("profile: %d labels for %d rows", len(labels), m.Rows())
	}
	idx, err := columnIndex(m, ClusterColumns())
	if err != nil {
		return nil, err
	}
	k := 0
	for _, l := range labels {
		k = max(k, l)
	}
	var out []ClusterProfile
	for c := 1; c <= k; c++ {
		var rows []int
		for i, l := range labels {
			if l == c {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			continue
		}
		p := ClusterProfile{Cluster: c, Size: len(rows), Means: make(map[string]float64, len(idx))}
		col := make([]float64, len(rows))
		for _, f := range idx {
			for n, r := range rows {
				col[n] = m.X[r][f]
			}
			p.Means[m.Features[f]] = stat.Mean(col, nil)
		}
		out = append(out, p)
	}
	return out, nil
}
