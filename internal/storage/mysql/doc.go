// Package mysql provides the SQL repositories used by the engine: customer
// records, conversation turns and workflow runs. The same statements run on
// MySQL in production and on SQLite for local development and tests; schema
// changes ship as embedded migrations.
package mysql
