package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
)

type gradeRepository struct {
	db *DB
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(db *DB) grade.Repository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) GetStudent(_ context.Context, studentID string) (grade.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	usr, ok := repo.db.users[studentID]
	if !ok {
		return grade.Student{}, grade.ErrNotFound
	}
	return grade.Student{
		ID:     usr.ID,
		Name:   usr.Name,
		Email:  usr.Email,
		Gender: repo.db.profiles[studentID],
	}, nil
}

func (repo *gradeRepository) GetMarks(_ context.Context, studentID string) (grade.MarksRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.marks[studentID]; ok {
		return *rec, nil
	}
	return grade.MarksRecord{}, grade.ErrNotFound
}

func (repo *gradeRepository) GetOrCreateMarks(_ context.Context, studentID string) (grade.MarksRecord, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if rec, ok := repo.db.marks[studentID]; ok {
		return *rec, nil
	}
	if _, ok := repo.db.users[studentID]; !ok {
		return grade.MarksRecord{}, grade.ErrNotFound
	}
	rec := grade.NewMarksRecord(studentID, grade.NowFunc().UTC())
	repo.db.marks[studentID] = &rec
	return rec, nil
}

func (repo *gradeRepository) QueryMarks(_ context.Context, filter *grade.QueryFilter, ordering []core.DBOrdering) ([]grade.MarksRecord, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]grade.MarksRecord, 0, len(repo.db.marks))
	for _, rec := range repo.db.marks {
		if filter != nil && !repo.matchMarks(*rec, filter) {
			continue
		}
		records = append(records, *rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ordering {
			less, equal := compareMarks(records[i], records[j], ord.Field)
			if equal {
				continue
			}
			if ord.Ascending {
				return less
			}
			return !less
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}

func (repo *gradeRepository) matchMarks(rec grade.MarksRecord, filter *grade.QueryFilter) bool {
	if filter.Graded != nil && rec.FinalGrade.Valid != *filter.Graded {
		return false
	}
	if filter.Grade != nil && (!rec.FinalGrade.Valid || rec.FinalGrade.Int != *filter.Grade) {
		return false
	}
	if filter.Search != "" {
		usr, ok := repo.db.users[rec.StudentID]
		if !ok {
			return false
		}
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(usr.Username, s) &&
			!strings.Contains(usr.Email, s) {
			return false
		}
	}
	return true
}

func compareMarks(a, b grade.MarksRecord, field string) (less, equal bool) {
	switch field {
	case "final_assessment_score":
		return a.FinalAssessmentScore < b.FinalAssessmentScore, a.FinalAssessmentScore == b.FinalAssessmentScore
	case "final_grade":
		return a.FinalGrade.Int < b.FinalGrade.Int, a.FinalGrade == b.FinalGrade
	case "created_at":
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	case "student_id":
		return a.StudentID < b.StudentID, a.StudentID == b.StudentID
	}
	return false, true
}

func (repo *gradeRepository) UpdateMarks(_ context.Context, rec grade.MarksRecord, version int) (grade.MarksRecord, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.marks[rec.StudentID]
	if !ok {
		return grade.MarksRecord{}, grade.ErrNotFound
	}
	if version != 0 && stored.Version != version {
		return grade.MarksRecord{}, grade.ErrConflict
	}
	stored.Marks = rec.Marks
	stored.Version++
	stored.UpdatedAt = grade.NowFunc().UTC()
	return *stored, nil
}

func (repo *gradeRepository) SetFinalGrade(_ context.Context, studentID string, label grade.Label, version int) (grade.MarksRecord, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.marks[studentID]
	if !ok {
		return grade.MarksRecord{}, grade.ErrNotFound
	}
	if stored.Version != version {
		return grade.MarksRecord{}, grade.ErrConflict
	}
	stored.FinalGrade = null.IntFrom(int(label))
	stored.Version++
	stored.UpdatedAt = grade.NowFunc().UTC()
	return *stored, nil
}

func (repo *gradeRepository) SetGender(_ context.Context, studentID string, gender grade.Gender) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[studentID]; !ok {
		return grade.ErrNotFound
	}
	repo.db.profiles[studentID] = gender
	return nil
}
