package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/notify"
	"github.com/susahesumudu/mit-erp/core/user"
	emailsvc "github.com/susahesumudu/mit-erp/services/email"
	inmemdb "github.com/susahesumudu/mit-erp/storage/database/inmem"
	testutil "github.com/susahesumudu/mit-erp/tests"
)

var (
	usrRepo   user.Repository
	gradeRepo grade.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	gradeRepo = inmemdb.NewGradeRepository(db)

	logger := testutil.NewLogger(t)
	core.ParseEmailTemplates(logger)
	emailsvc.ResetSentMessages()
	artifacts := testutil.LoadedArtifacts(t, 0.5)
	dispatcher := notify.NewDispatcherMock(nil, emailsvc.NewConsoleServiceMock(logger), logger)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo:   usrRepo,
		gradeSvc:  grade.NewService(gradeRepo, artifacts, dispatcher, logger),
		artifacts: artifacts,
		out:       out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(args))
			assert.Contains(t, out.String(), "Usage:")
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotDir string
	var gotFS fs.FS
	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		gotDir, gotFS = dir, fsys
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "marks_index", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
			assert.Equal(t, "migrations", gotDir)
			assert.NotNil(t, gotFS)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)

	existing := testutil.CreateUser(t, usrRepo, "Old Name", "kamal", "kamal@mit.lk", "Old.Pa55word", user.StudentRoles, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "bad flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "nimal"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "nimal", "-role", "janitor"}, extra: extra{pwd: "pwd"}, wantErrStr: `unknown role "janitor"`},
		{name: "create admin", args: []string{"adduser", "-username", " Nimal ", "-email", "nimal@mit.lk", "-name", " Nimal Silva "}, extra: extra{pwd: "pwd"}},
		{name: "update existing", args: []string{"adduser", "-email", "KAMAL@mit.lk", "-role", user.RoleTeacher}, extra: extra{pwd: "new-pwd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()
	admin, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "nimal"})
	require.NoError(t, err)
	assert.Equal(t, "Nimal Silva", admin.Name)
	assert.Equal(t, "nimal@mit.lk", admin.Email)
	assert.ElementsMatch(t, user.AllRoles, admin.Roles)
	assert.True(t, admin.Active())
	assert.NoError(t, admin.CheckPassword("pwd"))

	updated, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Old Name", updated.Name)
	assert.Equal(t, []string{user.RoleTeacher}, updated.Roles)
	assert.True(t, updated.Active())
	assert.NoError(t, updated.CheckPassword("new-pwd"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
				assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
			}
		})
	}
}

func Test_commandLine_setGender(t *testing.T) {
	cli, _ := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Amali Perera", "amali", "amali@mit.lk", "", user.StudentRoles, true)

	tests := []cliTest{
		{name: "no args", args: []string{"setgender"}, wantErr: errHelp},
		{name: "no gender", args: []string{"setgender", "-student", student.ID}, wantErr: errHelp},
		{name: "invalid gender", args: []string{"setgender", "-student", student.ID, "-gender", "X"}, wantAnyErr: true},
		{name: "unknown student", args: []string{"setgender", "-student", "lol", "-gender", "F"}, wantErr: grade.ErrNotFound},
		{name: "success", args: []string{"setgender", "-student", student.ID, "-gender", "F"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	got, err := gradeRepo.GetStudent(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, grade.GenderFemale, got.Gender)
}

func Test_commandLine_predict(t *testing.T) {
	cli, out := setup(t)

	student := testutil.CreateUser(t, usrRepo, "Amali Perera", "amali", "amali@mit.lk", "", user.StudentRoles, true)
	other := testutil.CreateUser(t, usrRepo, "Kasun Fernando", "kasun", "kasun@mit.lk", "", user.StudentRoles, true)
	testutil.SetMarks(t, gradeRepo, student.ID, grade.Marks{FinalAssessmentScore: 72.5, TheoryHours: 30})

	tests := []cliTest{
		{name: "no args", args: []string{"predict"}, wantErr: errHelp},
		{name: "unknown student", args: []string{"predict", "-student", "lol"}, wantErr: grade.ErrNotFound},
		{name: "no marks record", args: []string{"predict", "-student", other.ID}, wantErr: grade.ErrNotFound},
		{name: "success", args: []string{"predict", "-student", student.ID}, extra: fmt.Sprintf("Amali Perera (%s): Pass\n", student.ID)},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(args))
			if want, ok := tt.extra.(string); ok {
				assert.Equal(t, want, out.String())
			}
		})
	}

	rec, err := gradeRepo.GetMarks(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pass", rec.GradeLabel())
	assert.Equal(t, 1, len(emailsvc.Sent()))
}

func Test_commandLine_checkArtifacts(t *testing.T) {
	cli, out := setup(t)

	t.Run("loaded", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "checkartifacts"}))
		assert.Contains(t, out.String(), "scaler:")
		assert.Contains(t, out.String(), "loaded=true")
		assert.NotContains(t, out.String(), "loaded=false")
	})

	t.Run("missing scaler", func(t *testing.T) {
		out.Reset()
		require.NoError(t, os.Remove(cli.artifacts.Status().ScalerPath))

		err := cli.run([]string{"admin", "checkartifacts"})
		assert.Equal(t, grade.ErrArtifactMissing, errors.Cause(err))
		assert.Contains(t, out.String(), "loaded=false")
		assert.Contains(t, out.String(), "classifier: ")
	})
}
