//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loadable extension on every
	// connection the mattn/go-sqlite3 driver opens, including the one
	// EnsureVectorIndex uses to create the vec0 virtual table.
	vec.Auto()
}
