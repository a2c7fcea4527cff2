package option

import (
	"strconv"
	"time"

	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination filters rows strictly after the cursor (created_at desc, id desc)
// and fetches one extra row so callers can detect another page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil && cursor != nil {
			createdAt, errTime := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			id, errID := strconv.ParseInt(cursor.ID, 10, 64)
			if errTime == nil && errID == nil {
				db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
			}
		}
		if page.PageSize > 0 {
			db = db.Limit(page.PageSize + 1)
		}
		return db
	})
}
