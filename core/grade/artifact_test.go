package grade

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scalerJSON = `{
	"feature_names": ["gender_binary", "num_of_prev_attempts", "final_assessment_score", "tasks_completed",
		"practical_hours", "theory_hours", "exercises_completed", "industry_training_experience"],
	"data_min": [0, 0, 0, 0, 0, 0, 0, 0],
	"data_max": [1, 4, 100, 10, 80, 60, 10, 2]
}`

const classifierYAML = `type: logistic_regression
classes: [0, 1]
coef:
  - [0.1, -0.5, 4, 1, 0.5, 0.5, 0.5, 0.2]
intercept: [-3]
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScaler(t *testing.T) {
	scaler, err := LoadScaler(writeFile(t, "scaler.json", scalerJSON))
	require.NoError(t, err)
	assert.Equal(t, FeatureCount, scaler.NFeatures())
	assert.Equal(t, &[2]float64{0, 1}, scaler.FeatureRange)

	got, err := scaler.Transform([]float64{1, 1, 72.5, 8, 40, 30, 5, 1})
	require.NoError(t, err)
	want := []float64{1, 0.25, 0.725, 0.8, 0.5, 0.5, 0.5, 0.5}
	assert.InDeltaSlice(t, want, got, 1e-9)
}

func TestScaler_Transform_featureRange(t *testing.T) {
	s := Scaler{
		DataMin:      []float64{0, 0, 10, 0, 0, 0, 0, 5},
		DataMax:      []float64{1, 1, 20, 1, 1, 1, 1, 5}, // last column is constant
		FeatureRange: &[2]float64{-1, 1},
	}
	require.NoError(t, s.init())

	got, err := s.Transform([]float64{0, 1, 15, 0.5, 0, 0, 0, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 1, 0, 0, -1, -1, -1, -1}, got, 1e-9)
}

func TestScaler_Transform_deterministic(t *testing.T) {
	scaler, err := LoadScaler(writeFile(t, "scaler.json", scalerJSON))
	require.NoError(t, err)

	x := []float64{0, 2, 55.5, 3, 12, 7, 9, 0}
	first, err := scaler.Transform(x)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := scaler.Transform(x)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, []float64{0, 2, 55.5, 3, 12, 7, 9, 0}, x, "input must not be modified")
}

func TestScaler_Transform_schemaMismatch(t *testing.T) {
	scaler, err := LoadScaler(writeFile(t, "scaler.json", scalerJSON))
	require.NoError(t, err)

	_, err = scaler.Transform([]float64{1, 2, 3})
	assert.Equal(t, ErrSchemaMismatch, errors.Cause(err))
}

func TestLoadScaler_errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "corrupt", content: `{"data_min": [0, 0`, wantErr: ErrArtifactMissing},
		{name: "too few features", content: `{"data_min": [0, 0], "data_max": [1, 1]}`, wantErr: ErrSchemaMismatch},
		{
			name:    "feature order",
			content: `{"feature_names": ["a", "b", "c", "d", "e", "f", "g", "h"], "data_min": [0,0,0,0,0,0,0,0], "data_max": [1,1,1,1,1,1,1,1]}`,
			wantErr: ErrSchemaMismatch,
		},
		{
			name:    "invalid range",
			content: `{"data_min": [0,0,0,0,0,0,0,0], "data_max": [1,1,1,1,1,1,1,1], "feature_range": [1, 0]}`,
			wantErr: ErrArtifactMissing,
		},
		{
			name:    "empty range",
			content: `{"data_min": [0,0,0,0,0,0,0,0], "data_max": [1,1,1,1,1,1,1,1], "feature_range": [0, 0]}`,
			wantErr: ErrArtifactMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScaler(writeFile(t, "scaler.json", tt.content))
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadScaler(filepath.Join(t.TempDir(), "nope.json"))
		assert.Equal(t, ErrArtifactMissing, errors.Cause(err))
	})
}

func TestLoadClassifier(t *testing.T) {
	classifier, err := LoadClassifier(writeFile(t, "classifier.yaml", classifierYAML))
	require.NoError(t, err)
	assert.Equal(t, FeatureCount, classifier.NFeatures())

	tests := []struct {
		name string
		x    []float64
		want Label
	}{
		{name: "strong student", x: []float64{1, 0.25, 0.725, 0.8, 0.5, 0.5, 0.5, 0.5}, want: LabelPass},
		{name: "weak student", x: []float64{0, 1, 0.1, 0.1, 0, 0, 0, 0}, want: LabelFail},
		{name: "on the boundary", x: []float64{0, 0, 0.75, 0, 0, 0, 0, 0}, want: LabelFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifier.Predict(tt.x)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = classifier.Predict([]float64{1})
	assert.Equal(t, ErrSchemaMismatch, errors.Cause(err))
}

func TestLoadClassifier_errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{name: "unknown type", file: "c.json", content: `{"type": "svm", "classes": [0, 1], "coef": [[1,1,1,1,1,1,1,1]], "intercept": [0]}`, wantErr: ErrArtifactMissing},
		{name: "multiclass", file: "c.json", content: `{"type": "logistic_regression", "classes": [0, 1, 2], "coef": [[1,1,1,1,1,1,1,1]], "intercept": [0]}`, wantErr: ErrArtifactMissing},
		{name: "non-binary classes", file: "c.json", content: `{"type": "logistic_regression", "classes": [0, 2], "coef": [[1,1,1,1,1,1,1,1]], "intercept": [0]}`, wantErr: ErrSchemaMismatch},
		{name: "negative class", file: "c.json", content: `{"type": "logistic_regression", "classes": [-1, 1], "coef": [[1,1,1,1,1,1,1,1]], "intercept": [0]}`, wantErr: ErrSchemaMismatch},
		{name: "swapped classes", file: "c.yml", content: "type: logistic_regression\nclasses: [1, 0]\ncoef: [[1,1,1,1,1,1,1,1]]\nintercept: [0]\n", wantErr: ErrSchemaMismatch},
		{name: "wrong feature count", file: "c.json", content: `{"type": "logistic_regression", "classes": [0, 1], "coef": [[1,1,1]], "intercept": [0]}`, wantErr: ErrSchemaMismatch},
		{name: "corrupt yaml", file: "c.yml", content: "type: [", wantErr: ErrArtifactMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClassifier(writeFile(t, tt.file, tt.content))
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestBuildFeatures(t *testing.T) {
	marks := Marks{
		NumOfPrevAttempts:          1,
		FinalAssessmentScore:       72.5,
		TasksCompleted:             8,
		PracticalHours:             40,
		TheoryHours:                30,
		ExercisesCompleted:         5,
		IndustryTrainingExperience: 1,
	}
	assert.Equal(t, []float64{1, 1, 72.5, 8, 40, 30, 5, 1}, BuildFeatures(GenderFemale, marks))

	for _, g := range []Gender{GenderMale, GenderOther, "", "X"} {
		assert.Equal(t, float64(0), BuildFeatures(g, marks)[0], "gender %q", g)
	}
	assert.Len(t, FeatureNames, len(BuildFeatures(GenderMale, marks)))
}
