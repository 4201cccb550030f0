package stats

import "github.com/juju/errors"

// StandardScaler centres columns to zero mean and scales them to unit
// population variance. Constant columns get a scale of 1.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

// Fit learns per-column moments from X.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: empty X")
	}
	r, c := len(X), len(X[0])
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			col[i] = X[i][j]
		}
		s.Mean[j] = Mean(col)
		s.Std[j] = PopStd(col)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return nil
}

// Transform applies the learned moments to X, returning a new matrix.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	Y := make([][]float64, len(X))
	for i, x := range X {
		row := make([]float64, len(x))
		for j := range x {
			row[j] = (x[j] - s.Mean[j]) / s.Std[j]
		}
		Y[i] = row
	}
	return Y
}

func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X), nil
}
