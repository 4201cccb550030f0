package model

// Classifier is the capability every binary classifier family implements.
// A classifier is fitted once and treated as immutable afterwards.
type Classifier interface {
	Name() string
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) []int
	PredictProba(X [][]float64) []float64 // returns p(y=1)
}

// Clusterer is for unsupervised clustering.
type Clusterer interface {
	Fit(X [][]float64) error
	Predict(X [][]float64) ([]int, error)
}

var (
	_ Classifier = (*DecisionTreeClassifier)(nil)
	_ Classifier = (*RandomForest)(nil)
	_ Classifier = (*GradientBoosting)(nil)
	_ Classifier = (*AdaBoost)(nil)
	_ Classifier = (*XGBoost)(nil)
	_ Clusterer  = (*KMeans)(nil)
)
