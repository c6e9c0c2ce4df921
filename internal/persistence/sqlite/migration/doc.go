// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (e.g. "001_initial_schema.sql") and are embedded into the binary. Applied
// versions are tracked in the schema_migrations table together with the
// checksum of the file that was run, so an edited migration is detected
// instead of silently skipped.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(Files), NewSQLiteExecutor(db), Dir, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
