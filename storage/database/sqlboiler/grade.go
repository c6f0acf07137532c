package boiledrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
)

const marksColumns = `student_id, num_of_prev_attempts, final_assessment_score, tasks_completed, practical_hours,
	theory_hours, exercises_completed, industry_training_experience, final_grade, version, created_at, updated_at`

var marksOrdering = map[string]string{
	"student_id":             "student_id",
	"final_assessment_score": "final_assessment_score",
	"final_grade":            "final_grade",
	"created_at":             "created_at",
	"updated_at":             "updated_at",
}

type marksRow struct {
	StudentID                  string    `boil:"student_id"`
	NumOfPrevAttempts          int       `boil:"num_of_prev_attempts"`
	FinalAssessmentScore       float64   `boil:"final_assessment_score"`
	TasksCompleted             int       `boil:"tasks_completed"`
	PracticalHours             float64   `boil:"practical_hours"`
	TheoryHours                float64   `boil:"theory_hours"`
	ExercisesCompleted         int       `boil:"exercises_completed"`
	IndustryTrainingExperience float64   `boil:"industry_training_experience"`
	FinalGrade                 null.Int  `boil:"final_grade"`
	Version                    int       `boil:"version"`
	CreatedAt                  time.Time `boil:"created_at"`
	UpdatedAt                  time.Time `boil:"updated_at"`
}

type gradeRepository struct {
	exec core.DBExecutor
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(exec core.DBExecutor) *gradeRepository {
	return &gradeRepository{exec: exec}
}

func (repo gradeRepository) unboil(row marksRow) grade.MarksRecord {
	return grade.MarksRecord{
		StudentID: row.StudentID,
		Marks: grade.Marks{
			NumOfPrevAttempts:          row.NumOfPrevAttempts,
			FinalAssessmentScore:       row.FinalAssessmentScore,
			TasksCompleted:             row.TasksCompleted,
			PracticalHours:             row.PracticalHours,
			TheoryHours:                row.TheoryHours,
			ExercisesCompleted:         row.ExercisesCompleted,
			IndustryTrainingExperience: row.IndustryTrainingExperience,
		},
		FinalGrade: row.FinalGrade,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

func (repo gradeRepository) GetStudent(ctx context.Context, studentID string) (grade.Student, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return grade.Student{}, grade.ErrNotFound
	}

	var row struct {
		ID     string      `boil:"id"`
		Name   null.String `boil:"name"`
		Email  null.String `boil:"email"`
		Gender null.String `boil:"gender"`
	}
	q := fmt.Sprintf(`SELECT u.id, u.name, u.email, p.gender FROM %s u
		LEFT JOIN %s p ON p.user_id = u.id WHERE u.id = $1`, userTable, profileTable)
	if err := queries.Raw(q, studentID).Bind(ctx, repo.exec, &row); err != nil {
		return grade.Student{}, trapNoRowsErr(err, grade.ErrNotFound, "finding student")
	}
	return grade.Student{
		ID:     row.ID,
		Name:   row.Name.String,
		Email:  row.Email.String,
		Gender: grade.Gender(row.Gender.String),
	}, nil
}

func (repo gradeRepository) GetMarks(ctx context.Context, studentID string) (grade.MarksRecord, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return grade.MarksRecord{}, grade.ErrNotFound
	}

	var row marksRow
	q := newQuery(qm.Select(marksColumns), qm.From(marksTable), qm.Where("student_id = ?", studentID))
	if err := q.Bind(ctx, repo.exec, &row); err != nil {
		return grade.MarksRecord{}, trapNoRowsErr(err, grade.ErrNotFound, "finding marks record")
	}
	return repo.unboil(row), nil
}

func (repo gradeRepository) GetOrCreateMarks(ctx context.Context, studentID string) (grade.MarksRecord, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return grade.MarksRecord{}, grade.ErrNotFound
	}

	now := grade.NowFunc().UTC()
	q := fmt.Sprintf(`INSERT INTO %s (student_id, created_at, updated_at) VALUES ($1, $2, $2)
		ON CONFLICT (student_id) DO NOTHING`, marksTable)
	if _, err := queries.Raw(q, studentID, now).ExecContext(ctx, repo.exec); err != nil {
		return grade.MarksRecord{}, trapFKErr(err, grade.ErrNotFound, "creating marks record")
	}
	return repo.GetMarks(ctx, studentID)
}

func (repo gradeRepository) QueryMarks(ctx context.Context, filter *grade.QueryFilter, ordering []core.DBOrdering) ([]grade.MarksRecord, error) {
	mods := []qm.QueryMod{qm.Select(marksColumns), qm.From(marksTable)}

	if filter != nil {
		if filter.Graded != nil {
			if *filter.Graded {
				mods = append(mods, qm.Where("final_grade IS NOT NULL"))
			} else {
				mods = append(mods, qm.Where("final_grade IS NULL"))
			}
		}
		if filter.Grade != nil {
			mods = append(mods, qm.Where("final_grade = ?", *filter.Grade))
		}
		// records of students with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Where(
				fmt.Sprintf("student_id IN (SELECT id FROM %s WHERE name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", userTable),
				val, val, val))
		}
	}
	if mod := orderBy(ordering, marksOrdering); mod != nil {
		mods = append(mods, mod)
	}

	var rows []marksRow
	if err := newQuery(mods...).Bind(ctx, repo.exec, &rows); err != nil {
		return nil, errors.Wrap(err, "querying marks records")
	}
	records := make([]grade.MarksRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, repo.unboil(row))
	}
	return records, nil
}

// versionConflict tells a stale version apart from a missing record after a guarded update matched no row.
func (repo gradeRepository) versionConflict(ctx context.Context, studentID string) error {
	if _, err := repo.GetMarks(ctx, studentID); err != nil {
		return err
	}
	return grade.ErrConflict
}

func (repo gradeRepository) UpdateMarks(ctx context.Context, rec grade.MarksRecord, version int) (grade.MarksRecord, error) {
	q := fmt.Sprintf(`UPDATE %s SET num_of_prev_attempts = $2, final_assessment_score = $3, tasks_completed = $4,
		practical_hours = $5, theory_hours = $6, exercises_completed = $7, industry_training_experience = $8,
		version = version + 1, updated_at = $9
		WHERE student_id = $1 AND ($10 = 0 OR version = $10)
		RETURNING %s`, marksTable, marksColumns)

	var rows []marksRow
	err := queries.Raw(q,
		rec.StudentID, rec.NumOfPrevAttempts, rec.FinalAssessmentScore, rec.TasksCompleted,
		rec.PracticalHours, rec.TheoryHours, rec.ExercisesCompleted, rec.IndustryTrainingExperience,
		grade.NowFunc().UTC(), version,
	).Bind(ctx, repo.exec, &rows)
	if err != nil {
		return grade.MarksRecord{}, errors.Wrap(err, "updating marks record")
	}
	if len(rows) == 0 {
		return grade.MarksRecord{}, repo.versionConflict(ctx, rec.StudentID)
	}
	return repo.unboil(rows[0]), nil
}

func (repo gradeRepository) SetFinalGrade(ctx context.Context, studentID string, label grade.Label, version int) (grade.MarksRecord, error) {
	q := fmt.Sprintf(`UPDATE %s SET final_grade = $2, version = version + 1, updated_at = $3
		WHERE student_id = $1 AND version = $4
		RETURNING %s`, marksTable, marksColumns)

	var rows []marksRow
	err := queries.Raw(q, studentID, int(label), grade.NowFunc().UTC(), version).Bind(ctx, repo.exec, &rows)
	if err != nil {
		return grade.MarksRecord{}, errors.Wrap(err, "setting final grade")
	}
	if len(rows) == 0 {
		return grade.MarksRecord{}, repo.versionConflict(ctx, studentID)
	}
	return repo.unboil(rows[0]), nil
}

func (repo gradeRepository) SetGender(ctx context.Context, studentID string, gender grade.Gender) error {
	if _, err := uuid.Parse(studentID); err != nil {
		return grade.ErrNotFound
	}

	q := fmt.Sprintf(`INSERT INTO %s (user_id, gender) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET gender = EXCLUDED.gender`, profileTable)
	if _, err := queries.Raw(q, studentID, string(gender)).ExecContext(ctx, repo.exec); err != nil {
		return trapFKErr(err, grade.ErrNotFound, "setting gender")
	}
	return nil
}
