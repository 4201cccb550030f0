package pipeline

import (
	"churn/pkg/dataprep"
	"churn/pkg/segment"
)

// Schema describes the encoded feature vector the classifier consumes.
type Schema struct {
	FeatureNames []string
	Types        []string // "numeric", "binary", "onehot" or "cluster"
}

func schemaOf(prep *dataprep.Preparer, seg *segment.Segmenter) Schema {
	s := Schema{FeatureNames: append([]string(nil), prep.Features...)}
	for _, k := range prep.Kinds {
		s.Types = append(s.Types, kindName[k])
	}
	if seg != nil {
		s.FeatureNames = append(s.FeatureNames, segment.ClusterFeature)
		s.Types = append(s.Types, "cluster")
	}
	return s
}

// Width is the length of an encoded vector.
func (s Schema) Width() int { return len(s.FeatureNames) }
