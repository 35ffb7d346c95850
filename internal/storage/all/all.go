// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "posimport/internal/storage/memory"
	_ "posimport/internal/storage/mssql"
	_ "posimport/internal/storage/postgres"
	_ "posimport/internal/storage/sqlite"
)
