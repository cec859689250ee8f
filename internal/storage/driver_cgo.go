//go:build cgo && !purego

package storage

import _ "github.com/mattn/go-sqlite3"

const driverName = "sqlite3"
