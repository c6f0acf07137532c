package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/susahesumudu/mit-erp/apps/api/echo"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
	"github.com/susahesumudu/mit-erp/services/email"
	"github.com/susahesumudu/mit-erp/tests"
)

func Test_predictionApi_form(t *testing.T) {
	app := setup(t)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@mit.lk", "", user.TeacherRoles, true)
	student := testutil.CreateUser(t, app.usrRepo, "Amali Perera", "amali", "amali@mit.lk", "", user.StudentRoles, true)
	require.NoError(t, app.gradeRepo.SetGender(context.Background(), student.ID, grade.GenderFemale))
	testutil.SetMarks(t, app.gradeRepo, student.ID, studentMarks())

	values := []float64{1, 1, 72.5, 8, 40, 30, 5, 1}
	form := grade.PredictionForm{
		Student: grade.Student{ID: student.ID, Name: student.Name, Email: student.Email, Gender: grade.GenderFemale},
	}
	for i, name := range grade.FeatureNames {
		form.Features = append(form.Features, grade.FeatureInput{Name: name, Value: values[i]})
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/predictions/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher required", path: "/v1/predictions/" + student.ID, token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "form", path: "/v1/predictions/" + student.ID, token: getToken(t, teacher), wantData: marchallObj(t, form)},
		{
			name: "unknown student", path: "/v1/predictions/lol", token: getToken(t, teacher), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, app, tests)
}

func Test_predictionApi_predict(t *testing.T) {
	app := setup(t)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@mit.lk", "", user.TeacherRoles, true)
	student := testutil.CreateUser(t, app.usrRepo, "Amali Perera", "amali", "amali@mit.lk", "", user.StudentRoles, true)
	ungraded := testutil.CreateUser(t, app.usrRepo, "Kasun", "kasun", "kasun@mit.lk", "", user.StudentRoles, true)
	require.NoError(t, app.gradeRepo.SetGender(context.Background(), student.ID, grade.GenderFemale))
	before := testutil.SetMarks(t, app.gradeRepo, student.ID, studentMarks())
	token := getToken(t, teacher)

	notFound := marchallObj(t, httpErr{Error: "prediction failed while fetching_record: student not found"})
	runHTTPTests(t, app, []httpTest{
		{name: "unknown student", method: http.MethodPost, path: "/v1/predictions/lol", token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "no marks record", method: http.MethodPost, path: "/v1/predictions/" + ungraded.ID, token: token, wantCode: http.StatusNotFound, wantData: notFound},
	})
	_, err := app.gradeRepo.GetMarks(context.Background(), ungraded.ID)
	assert.Equal(t, grade.ErrNotFound, err, "predicting never creates a record")

	req, rec := newAuthRequest(http.MethodPost, "/v1/predictions/"+student.ID, token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pass", resp.Result)
	assert.Equal(t, grade.LabelPass, resp.Label)
	assert.Equal(t, []float64{1, 1, 72.5, 8, 40, 30, 5, 1}, resp.Features)
	assert.Equal(t, student.ID, resp.Student.ID)

	stored, err := app.gradeRepo.GetMarks(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, int(grade.LabelPass), stored.FinalGrade.Int)
	assert.Equal(t, before.Version+1, stored.Version)
	assert.Equal(t, stored.Version, resp.Record.Version)

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Dear Amali Perera")
	assert.Contains(t, sent[0].HTMLContent, "Pass")
}

func Test_predictionApi_artifactMissing(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@mit.lk", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, app.usrRepo, "Amali", "amali", "amali@mit.lk", "", user.StudentRoles, true)
	before := testutil.SetMarks(t, app.gradeRepo, student.ID, studentMarks())
	token := getToken(t, admin)

	require.NoError(t, os.Remove(app.artifacts.Status().ScalerPath))
	req, rec := newAuthRequest(http.MethodPost, "/v1/artifacts/reload", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/predictions/"+student.ID, token)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var herr httpErr
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &herr))
	assert.True(t, strings.HasPrefix(herr.Error, "prediction failed while normalizing: "), herr.Error)

	stored, err := app.gradeRepo.GetMarks(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored)
	assert.Empty(t, emailsvc.Sent())
}
