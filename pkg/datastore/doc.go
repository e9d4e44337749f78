/*
Package datastore keeps template content in a SQLite database: JSON data
documents that are merged into the Global Data of every render, snippets
served by the content:snippet callback, and partials used when no partial
file exists on disk.

The package works with any database/sql SQLite driver. Call SetupSchema once
on a new database, then New to get a Store with its prepared statements.
*/
package datastore
