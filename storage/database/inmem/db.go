package inmemdb

import (
	"sync"

	"github.com/susahesumudu/mit-erp/core/grade"
	"github.com/susahesumudu/mit-erp/core/user"
)

// DB is an in-memory store shared by the in-memory repositories.
type DB struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	profiles map[string]grade.Gender
	marks    map[string]*grade.MarksRecord
}

func Open() *DB {
	return &DB{
		users:    make(map[string]*user.User),
		profiles: make(map[string]grade.Gender),
		marks:    make(map[string]*grade.MarksRecord),
	}
}
