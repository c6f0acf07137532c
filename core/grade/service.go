package grade

import (
	"context"
	"expvar"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/notify"
)

const (
	emailSubject  = "Your Final Grade Prediction"
	emailTemplate = "grade_prediction"
)

var (
	NowFunc = time.Now // mockable

	predictions = expvar.NewMap("predictions")
)

type (
	Repository interface {
		// GetStudent returns ErrNotFound if no user exists with studentID.
		GetStudent(ctx context.Context, studentID string) (Student, error)
		// GetMarks returns ErrNotFound if the student has no marks record.
		GetMarks(ctx context.Context, studentID string) (MarksRecord, error)
		GetOrCreateMarks(ctx context.Context, studentID string) (MarksRecord, error)
		QueryMarks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]MarksRecord, error)
		// UpdateMarks writes rec.Marks if the stored version equals version (0 skips the check),
		// bumping the version. Returns ErrConflict otherwise.
		UpdateMarks(ctx context.Context, rec MarksRecord, version int) (MarksRecord, error)
		// SetFinalGrade atomically writes label if the stored version equals version,
		// bumping the version. Returns ErrConflict otherwise.
		SetFinalGrade(ctx context.Context, studentID string, label Label, version int) (MarksRecord, error)
		SetGender(ctx context.Context, studentID string, gender Gender) error
	}

	// Notifier fans out side effects; implementations never fail the caller.
	Notifier interface {
		Dispatch(ctx context.Context, group string, event notify.Event, email *core.EmailMessage)
	}

	Service interface {
		GetMarks(ctx context.Context, studentID string) (MarksRecord, error)
		GetOrCreateMarks(ctx context.Context, studentID string) (MarksRecord, error)
		QueryMarks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]MarksRecord, error)
		UpdateMarks(ctx context.Context, studentID string, um UpdateMarks) (MarksRecord, error)
		SetGender(ctx context.Context, studentID string, sg SetGender) error
		PredictionForm(ctx context.Context, studentID string) (PredictionForm, error)
		Predict(ctx context.Context, req PredictRequest) (Prediction, error)
	}

	service struct {
		repo      Repository
		artifacts *ArtifactStore
		notifier  Notifier
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, artifacts *ArtifactStore, notifier Notifier, logger core.Logger) Service {
	return &service{repo: repo, artifacts: artifacts, notifier: notifier, logger: logger}
}

type (
	PredictRequest struct {
		StudentID   string
		RequestedBy string // user ID notified of the outcome; empty broadcasts
	}

	Prediction struct {
		Student    Student     `json:"student"`
		Label      Label       `json:"label"`
		Result     string      `json:"result"`
		Features   []float64   `json:"features"`
		Normalized []float64   `json:"normalized"`
		Record     MarksRecord `json:"record"`
		Stage      Stage       `json:"stage"`
	}

	FeatureInput struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	// PredictionForm is the blank input form of a prediction.
	PredictionForm struct {
		Student    Student        `json:"student"`
		Features   []FeatureInput `json:"features"`
		FinalGrade string         `json:"final_grade"`
	}
)

func (svc *service) GetMarks(ctx context.Context, studentID string) (MarksRecord, error) {
	return svc.repo.GetMarks(ctx, studentID)
}

func (svc *service) GetOrCreateMarks(ctx context.Context, studentID string) (MarksRecord, error) {
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return MarksRecord{}, err
	}
	return svc.repo.GetOrCreateMarks(ctx, studentID)
}

func (svc *service) QueryMarks(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]MarksRecord, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return svc.repo.QueryMarks(ctx, filter, ordering)
}

func (svc *service) UpdateMarks(ctx context.Context, studentID string, um UpdateMarks) (MarksRecord, error) {
	if err := core.Validate.Struct(um); err != nil {
		return MarksRecord{}, err
	}
	rec, err := svc.GetOrCreateMarks(ctx, studentID)
	if err != nil {
		return MarksRecord{}, err
	}
	rec.Marks = um.Marks
	return svc.repo.UpdateMarks(ctx, rec, um.Version)
}

func (svc *service) SetGender(ctx context.Context, studentID string, sg SetGender) error {
	if err := core.Validate.Struct(sg); err != nil {
		return err
	}
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return err
	}
	return svc.repo.SetGender(ctx, studentID, Gender(sg.Gender))
}

func (svc *service) PredictionForm(ctx context.Context, studentID string) (PredictionForm, error) {
	student, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return PredictionForm{}, err
	}
	rec, err := svc.repo.GetOrCreateMarks(ctx, studentID)
	if err != nil {
		return PredictionForm{}, err
	}

	features := BuildFeatures(student.Gender, rec.Marks)
	form := PredictionForm{Student: student, FinalGrade: rec.GradeLabel()}
	for i, name := range FeatureNames {
		form.Features = append(form.Features, FeatureInput{Name: name, Value: features[i]})
	}
	return form, nil
}

// Predict runs the prediction pipeline for a student, persists the label as the student's
// final grade and dispatches the notifications. A write conflict re-runs the pipeline once.
// Errors are always a *PredictionError.
func (svc *service) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	pred, err := svc.predict(ctx, req.StudentID)
	if errors.Cause(err) == ErrConflict {
		svc.logger.Warn(fmt.Sprintf("grade.Predict(%s): retrying after write conflict", req.StudentID))
		pred, err = svc.predict(ctx, req.StudentID)
	}
	if err != nil {
		predictions.Add("failed", 1)
		return Prediction{}, err
	}

	pred.Stage = StageNotifying
	svc.notify(ctx, req, pred)

	pred.Stage = StageDone
	predictions.Add(pred.Result, 1)
	return pred, nil
}

func (svc *service) predict(ctx context.Context, studentID string) (Prediction, error) {
	fail := func(stage Stage, err error) (Prediction, error) {
		return Prediction{Stage: StageFailed}, &PredictionError{Stage: stage, Err: err}
	}

	// fetching record
	student, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return fail(StageFetchingRecord, err)
	}
	rec, err := svc.repo.GetMarks(ctx, studentID)
	if err != nil {
		return fail(StageFetchingRecord, err)
	}

	// building features
	features := BuildFeatures(student.Gender, rec.Marks)

	// normalizing
	scaler, err := svc.artifacts.Scaler()
	if err != nil {
		return fail(StageNormalizing, err)
	}
	normalized, err := scaler.Transform(features)
	if err != nil {
		return fail(StageNormalizing, err)
	}

	// classifying
	classifier, err := svc.artifacts.Classifier()
	if err != nil {
		return fail(StageClassifying, err)
	}
	label, err := classifier.Predict(normalized)
	if err != nil {
		return fail(StageClassifying, err)
	}

	// persisting
	rec, err = svc.repo.SetFinalGrade(ctx, studentID, label, rec.Version)
	if err != nil {
		return fail(StagePersisting, err)
	}

	return Prediction{
		Student:    student,
		Label:      label,
		Result:     label.String(),
		Features:   features,
		Normalized: normalized,
		Record:     rec,
		Stage:      StagePersisting,
	}, nil
}

func (svc *service) notify(ctx context.Context, req PredictRequest, pred Prediction) {
	if svc.notifier == nil {
		return
	}

	group := notify.BroadcastGroup
	if req.RequestedBy != "" {
		group = notify.UserGroup(req.RequestedBy)
	}
	event := notify.Event{
		Message: fmt.Sprintf("New final grade predicted for student %s: %s", pred.Student.Name, pred.Result),
	}

	var msg *core.EmailMessage
	if pred.Student.Email != "" {
		msg = &core.EmailMessage{
			To:           []mail.Address{{Name: pred.Student.Name, Address: pred.Student.Email}},
			Subject:      emailSubject,
			TemplateName: emailTemplate,
			TemplateData: map[string]interface{}{
				"StudentName": pred.Student.Name,
				"Result":      pred.Result,
			},
		}
	}
	svc.notifier.Dispatch(ctx, group, event, msg)
}
