package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
)

// RunGradeRepositoryTests checks the behaviour every grade.Repository must share.
// Both repositories must start empty.
func RunGradeRepositoryTests(t *testing.T, usrRepo user.Repository, repo grade.Repository) {
	ctx := context.Background()
	student := CreateUser(t, usrRepo, "Amali Perera", "amali", "amali@mit.lk", "", user.StudentRoles, true)
	other := CreateUser(t, usrRepo, "Kasun Silva", "kasun", "kasun@mit.lk", "", user.StudentRoles, true)
	unknown := "3b241101-e2bb-4255-8caf-4136c566a962"

	t.Run("GetStudent", func(t *testing.T) {
		got, err := repo.GetStudent(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, grade.Student{ID: student.ID, Name: student.Name, Email: student.Email}, got)

		require.NoError(t, repo.SetGender(ctx, student.ID, grade.GenderFemale))
		got, err = repo.GetStudent(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, grade.GenderFemale, got.Gender)

		require.NoError(t, repo.SetGender(ctx, student.ID, grade.GenderOther))
		got, err = repo.GetStudent(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, grade.GenderOther, got.Gender)

		_, err = repo.GetStudent(ctx, unknown)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
		_, err = repo.GetStudent(ctx, "lol")
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
		assert.Equal(t, grade.ErrNotFound, errors.Cause(repo.SetGender(ctx, unknown, grade.GenderMale)))
	})

	t.Run("GetOrCreateMarks", func(t *testing.T) {
		_, err := repo.GetMarks(ctx, student.ID)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))

		rec, err := repo.GetOrCreateMarks(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, student.ID, rec.StudentID)
		assert.Equal(t, 1, rec.Version)
		assert.False(t, rec.FinalGrade.Valid)
		assert.Equal(t, grade.Marks{}, rec.Marks)

		again, err := repo.GetOrCreateMarks(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Version, again.Version)

		_, err = repo.GetOrCreateMarks(ctx, unknown)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
	})

	t.Run("UpdateMarks", func(t *testing.T) {
		rec, err := repo.GetMarks(ctx, student.ID)
		require.NoError(t, err)
		rec.Marks = grade.Marks{NumOfPrevAttempts: 1, FinalAssessmentScore: 72.5, TasksCompleted: 8, PracticalHours: 40}

		updated, err := repo.UpdateMarks(ctx, rec, rec.Version)
		require.NoError(t, err)
		assert.Equal(t, rec.Marks, updated.Marks)
		assert.Equal(t, rec.Version+1, updated.Version)

		_, err = repo.UpdateMarks(ctx, rec, rec.Version) // stale
		assert.Equal(t, grade.ErrConflict, errors.Cause(err))

		updated, err = repo.UpdateMarks(ctx, rec, 0)
		require.NoError(t, err)
		assert.Equal(t, rec.Version+2, updated.Version)

		_, err = repo.UpdateMarks(ctx, grade.MarksRecord{StudentID: other.ID}, 0)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
	})

	t.Run("SetFinalGrade", func(t *testing.T) {
		rec, err := repo.GetMarks(ctx, student.ID)
		require.NoError(t, err)

		graded, err := repo.SetFinalGrade(ctx, student.ID, grade.LabelPass, rec.Version)
		require.NoError(t, err)
		assert.Equal(t, int(grade.LabelPass), graded.FinalGrade.Int)
		assert.True(t, graded.FinalGrade.Valid)
		assert.Equal(t, rec.Version+1, graded.Version)
		assert.Equal(t, rec.Marks, graded.Marks)

		_, err = repo.SetFinalGrade(ctx, student.ID, grade.LabelFail, rec.Version)
		assert.Equal(t, grade.ErrConflict, errors.Cause(err))

		stored, err := repo.GetMarks(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, graded.FinalGrade, stored.FinalGrade, "a conflicting write changes nothing")

		_, err = repo.SetFinalGrade(ctx, other.ID, grade.LabelPass, 1)
		assert.Equal(t, grade.ErrNotFound, errors.Cause(err))
	})

	t.Run("SetFinalGrade concurrently", func(t *testing.T) {
		rec, err := repo.GetMarks(ctx, student.ID)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.SetFinalGrade(ctx, student.ID, grade.LabelFail, rec.Version); err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, committed, "exactly one writer wins a version")
	})

	t.Run("QueryMarks", func(t *testing.T) {
		SetMarks(t, repo, other.ID, grade.Marks{FinalAssessmentScore: 10})

		ids := func(filter *grade.QueryFilter, ordering ...core.DBOrdering) []string {
			recs, err := repo.QueryMarks(ctx, filter, ordering)
			require.NoError(t, err)
			var ids []string
			for _, rec := range recs {
				ids = append(ids, rec.StudentID)
			}
			return ids
		}
		yes, no, fail := true, false, int(grade.LabelFail)
		byScore := core.DBOrdering{Field: "final_assessment_score", Ascending: true}

		assert.Equal(t, []string{other.ID, student.ID}, ids(nil, byScore))
		assert.Equal(t, []string{student.ID, other.ID}, ids(nil, core.DBOrdering{Field: "final_assessment_score"}))
		assert.Equal(t, []string{student.ID}, ids(&grade.QueryFilter{Graded: &yes}))
		assert.Equal(t, []string{other.ID}, ids(&grade.QueryFilter{Graded: &no}))
		assert.Equal(t, []string{student.ID}, ids(&grade.QueryFilter{Grade: &fail}))
		assert.Equal(t, []string{other.ID}, ids(&grade.QueryFilter{Search: "silva"}))
		assert.Empty(t, ids(&grade.QueryFilter{Search: "lol"}))
	})
}
