// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete backend to run, which in
// turn register their factories with the storage package.
//
// In other words, importing this package makes the following storage kinds
// available at runtime:
//
//   - "sqlite"   (funnel/internal/storage/sqlite)
//   - "postgres" (funnel/internal/storage/postgres)
//   - "mssql"    (funnel/internal/storage/mssql)
//
// Typical usage (in cmd/funnel/main.go or a similar wiring layer):
//
//	import _ "funnel/internal/storage/all" // enable all built-in backends
//
// A binary that should support only a subset of backends can blank-import
// the individual backend packages instead.
package all

import (
	_ "funnel/internal/storage/mssql"
	_ "funnel/internal/storage/postgres"
	_ "funnel/internal/storage/sqlite"
)
