// Package relica provides repository implementations using the Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements every streamsink repository interface:
//   - UserRepository
//   - OrderRepository
//   - NotificationRepository
//   - EventRepository
//   - DeadLetterRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/streamsink/adapters/relica"
//	    _ "github.com/lib/pq"
//	)
//
//	db, err := sql.Open("postgres", "host=localhost user=streamsink dbname=streamsink sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// driverName should be "mysql", "postgres", or "sqlite3"
//	repos := relica.NewRepositories(db, "postgres")
//
//	sink := streamsink.NewUserSink(repos.User, logger)
package relica
