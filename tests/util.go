package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
	"github.com/susahesumudu/mit-erp/storage/database"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// SetMarks creates the student's marks record if needed and overwrites its tracked marks.
func SetMarks(t *testing.T, repo grade.Repository, studentID string, marks grade.Marks) grade.MarksRecord {
	ctx := context.Background()
	rec, err := repo.GetOrCreateMarks(ctx, studentID)
	if err != nil {
		t.Fatalf("SetMarks() failed: %v", err)
	}
	rec.Marks = marks
	rec, err = repo.UpdateMarks(ctx, rec, 0)
	if err != nil {
		t.Fatalf("SetMarks() failed: %v", err)
	}
	return rec
}

// Artifacts returns a scaler fit on [0, 100] for every feature and a classifier whose
// only non-zero weight is on the final assessment score: a normalized score above
// threshold predicts pass, otherwise fail.
func Artifacts(threshold float64) (grade.Scaler, grade.Classifier) {
	names := grade.FeatureNames[:]
	dataMin := make([]float64, grade.FeatureCount)
	dataMax := make([]float64, grade.FeatureCount)
	coef := make([]float64, grade.FeatureCount)
	for i := range dataMax {
		dataMax[i] = 100
	}
	coef[2] = 10

	scaler := grade.Scaler{FeatureNames: names, DataMin: dataMin, DataMax: dataMax, FeatureRange: &[2]float64{0, 1}}
	classifier := grade.Classifier{
		Type:      "logistic_regression",
		Classes:   []int{int(grade.LabelFail), int(grade.LabelPass)},
		Coef:      [][]float64{coef},
		Intercept: []float64{-10 * threshold},
	}
	return scaler, classifier
}

// WriteArtifacts writes scaler and classifier as JSON files into dir.
func WriteArtifacts(t *testing.T, dir string, scaler grade.Scaler, classifier grade.Classifier) (string, string) {
	scalerPath := filepath.Join(dir, "scaler.json")
	classifierPath := filepath.Join(dir, "classifier.json")
	WriteJSON(t, scalerPath, scaler)
	WriteJSON(t, classifierPath, classifier)
	return scalerPath, classifierPath
}

func WriteJSON(t *testing.T, path string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}
	if err = os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteJSON() failed: %v", err)
	}
}

// LoadedArtifacts writes the artifacts into a temp dir and loads them into a store.
func LoadedArtifacts(t *testing.T, threshold float64) *grade.ArtifactStore {
	scaler, classifier := Artifacts(threshold)
	scalerPath, classifierPath := WriteArtifacts(t, t.TempDir(), scaler, classifier)
	store := grade.NewArtifactStore(scalerPath, classifierPath, NewLogger(t))
	if err := store.Reload(); err != nil {
		t.Fatalf("LoadedArtifacts() failed: %v", err)
	}
	return store
}

// Logger records messages; it is safe to use from goroutines outliving the test.
type Logger struct {
	mu       sync.Mutex
	messages []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(_ *testing.T) *Logger {
	return &Logger{}
}

func (l *Logger) log(level, msg string, _ []interface{}) {
	l.mu.Lock()
	l.messages = append(l.messages, level+": "+msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// Logged returns a copy of the recorded messages.
func (l *Logger) Logged() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

// PrepareDB opens the test postgres database, migrates it and truncates every table.
// The test is skipped unless TEST_DATABASE is set.
func PrepareDB(t *testing.T) *sql.DB {
	if os.Getenv("TEST_DATABASE") == "" {
		t.Skip("TEST_DATABASE not set: skipping postgres test")
	}
	conf := *core.Conf
	conf.Database.Name = os.Getenv("TEST_DATABASE")

	if err := database.CreateIfNotExist(&conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(&conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if _, err = db.Exec(fmt.Sprintf(`TRUNCATE TABLE marks_record, profile, %q CASCADE`, "user")); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
