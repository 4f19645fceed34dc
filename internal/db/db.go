package db

import "database/sql"

// DB wraps *sql.DB so higher layers depend on this package, not
// database/sql directly.
type DB struct {
	*sql.DB
}
