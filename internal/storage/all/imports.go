// Package all wires the built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the storage package. Importing it makes the following
// storage kinds available at runtime:
//
//   - "duckdb"   (pricehist/internal/storage/duckdb)
//   - "postgres" (pricehist/internal/storage/postgres)
//
// A binary that needs only one backend can blank-import that backend package
// directly instead of this one.
package all

import (
	_ "pricehist/internal/storage/duckdb"
	_ "pricehist/internal/storage/postgres"
)
