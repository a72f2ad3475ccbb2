// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each backend, which register their
// factories with the storage package. The following kinds become available:
//
//   - "parquet"  (marketetl/internal/storage/parquet)
//   - "postgres" (marketetl/internal/storage/postgres)
//   - "mysql"    (marketetl/internal/storage/mysql)
//   - "mssql"    (marketetl/internal/storage/mssql)
//   - "sqlite"   (marketetl/internal/storage/sqlite)
//
// A binary that needs only a subset can import those backends directly
// instead of this package.
package all

import (
	_ "marketetl/internal/storage/mssql"
	_ "marketetl/internal/storage/mysql"
	_ "marketetl/internal/storage/parquet"
	_ "marketetl/internal/storage/postgres"
	_ "marketetl/internal/storage/sqlite"
)
