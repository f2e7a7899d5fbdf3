// Package sqlstore persists an object graph in SQLite through gorm.
//
// Every Save rewrites the whole graph inside one transaction, so a reader
// either sees the previous save or the new one.
package sqlstore
