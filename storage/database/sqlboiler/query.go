package boiledrepos

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/susahesumudu/mit-erp/core"
)

const (
	userTable    = `"user"`
	profileTable = "profile"
	marksTable   = "marks_record"
)

var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

func orderBy(ordering []core.DBOrdering, allowed map[string]string) qm.QueryMod {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			ord.Field = col
			orderList = append(orderList, ord.String())
		}
	}
	if len(orderList) == 0 {
		return nil
	}
	return qm.OrderBy(strings.Join(orderList, ", "))
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

const fkViolation = "23503"

// trapFKErr maps a foreign key violation to notFound
func trapFKErr(err error, notFound error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == fkViolation {
		return notFound
	}
	return errors.Wrap(err, msg)
}
