package grade

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const classifierLogisticRegression = "logistic_regression"

// Scaler is a fitted min-max transform.
type Scaler struct {
	FeatureNames []string   `json:"feature_names" yaml:"feature_names"`
	DataMin      []float64  `json:"data_min" yaml:"data_min"`
	DataMax      []float64  `json:"data_max" yaml:"data_max"`
	FeatureRange *[2]float64 `json:"feature_range,omitempty" yaml:"feature_range,omitempty"` // nil means [0, 1]

	scale []float64
	min   []float64
}

// Classifier is a fitted binary logistic regression.
type Classifier struct {
	Type      string      `json:"type" yaml:"type"`
	Classes   []int       `json:"classes" yaml:"classes"`
	Coef      [][]float64 `json:"coef" yaml:"coef"`
	Intercept []float64   `json:"intercept" yaml:"intercept"`
}

// NFeatures is the number of columns the scaler was fit on.
func (s *Scaler) NFeatures() int { return len(s.DataMin) }

func (s *Scaler) init() error {
	if len(s.DataMin) != FeatureCount || len(s.DataMax) != FeatureCount {
		return errors.Wrapf(ErrSchemaMismatch, "scaler fit on %d features, want %d", len(s.DataMin), FeatureCount)
	}
	if err := checkFeatureNames(s.FeatureNames); err != nil {
		return errors.Wrap(err, "scaler")
	}
	if s.FeatureRange == nil {
		s.FeatureRange = &[2]float64{0, 1}
	}
	lo, hi := s.FeatureRange[0], s.FeatureRange[1]
	if lo >= hi {
		return errors.Wrapf(ErrArtifactMissing, "scaler: invalid feature_range %v", *s.FeatureRange)
	}

	s.scale = make([]float64, FeatureCount)
	s.min = make([]float64, FeatureCount)
	for i := range s.DataMin {
		dataRange := s.DataMax[i] - s.DataMin[i]
		if dataRange == 0 {
			dataRange = 1
		}
		s.scale[i] = (hi - lo) / dataRange
		s.min[i] = lo - s.DataMin[i]*s.scale[i]
	}
	return nil
}

// Transform rescales a single row using the min/max learned at fit time.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.scale) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "got %d features, scaler expects %d", len(x), len(s.scale))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.scale[i] + s.min[i]
	}
	return out, nil
}

// NFeatures is the number of columns the classifier was fit on.
func (c *Classifier) NFeatures() int {
	if len(c.Coef) == 0 {
		return 0
	}
	return len(c.Coef[0])
}

func (c *Classifier) init() error {
	if c.Type != classifierLogisticRegression {
		return errors.Wrapf(ErrArtifactMissing, "unsupported classifier type %q", c.Type)
	}
	if len(c.Classes) != 2 || len(c.Coef) != 1 || len(c.Intercept) != 1 {
		return errors.Wrap(ErrArtifactMissing, "classifier must be binary")
	}
	if c.Classes[0] != int(LabelFail) || c.Classes[1] != int(LabelPass) {
		return errors.Wrapf(ErrSchemaMismatch, "classifier classes are %v, want [%d %d]", c.Classes, LabelFail, LabelPass)
	}
	if c.NFeatures() != FeatureCount {
		return errors.Wrapf(ErrSchemaMismatch, "classifier fit on %d features, want %d", c.NFeatures(), FeatureCount)
	}
	return nil
}

// Predict returns the label of a single normalized row.
func (c *Classifier) Predict(x []float64) (Label, error) {
	coef := c.Coef[0]
	if len(x) != len(coef) {
		return 0, errors.Wrapf(ErrSchemaMismatch, "got %d features, classifier expects %d", len(x), len(coef))
	}
	z := c.Intercept[0]
	for i, v := range x {
		z += coef[i] * v
	}
	if z > 0 {
		return Label(c.Classes[1]), nil
	}
	return Label(c.Classes[0]), nil
}

func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != FeatureCount {
		return errors.Wrapf(ErrSchemaMismatch, "%d feature names, want %d", len(names), FeatureCount)
	}
	for i, name := range names {
		if name != FeatureNames[i] {
			return errors.Wrapf(ErrSchemaMismatch, "feature %d is %q, want %q", i, name, FeatureNames[i])
		}
	}
	return nil
}

// LoadScaler reads and validates the scaler artifact at path.
func LoadScaler(path string) (*Scaler, error) {
	var s Scaler
	if err := decodeArtifact(path, &s); err != nil {
		return nil, err
	}
	if err := s.init(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &s, nil
}

// LoadClassifier reads and validates the classifier artifact at path.
func LoadClassifier(path string) (*Classifier, error) {
	var c Classifier
	if err := decodeArtifact(path, &c); err != nil {
		return nil, err
	}
	if err := c.init(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &c, nil
}

func decodeArtifact(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(ErrArtifactMissing, "reading %s: %v", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(v)
	}
	if err != nil {
		return errors.Wrapf(ErrArtifactMissing, "decoding %s: %v", path, err)
	}
	return nil
}
