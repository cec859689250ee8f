//go:build !cgo || purego

package storage

import _ "modernc.org/sqlite"

const driverName = "sqlite"
