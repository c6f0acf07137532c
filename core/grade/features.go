package grade

// FeatureCount is the size of the canonical feature vector.
const FeatureCount = 8

// FeatureNames is the canonical feature order the artifacts must be fit with.
var FeatureNames = [FeatureCount]string{
	"gender_binary",
	"num_of_prev_attempts",
	"final_assessment_score",
	"tasks_completed",
	"practical_hours",
	"theory_hours",
	"exercises_completed",
	"industry_training_experience",
}

// BuildFeatures assembles the canonical feature vector of a student's marks.
func BuildFeatures(gender Gender, m Marks) []float64 {
	return []float64{
		gender.Binary(),
		float64(m.NumOfPrevAttempts),
		m.FinalAssessmentScore,
		float64(m.TasksCompleted),
		m.PracticalHours,
		m.TheoryHours,
		float64(m.ExercisesCompleted),
		m.IndustryTrainingExperience,
	}
}
