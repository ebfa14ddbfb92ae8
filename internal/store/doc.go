// Package store defines the persistence interface for task records and
// the error taxonomy shared by its backends.
//
// The external record store is consumed only through the operations on
// TaskStore: filtered queries, record creation, property-level patches,
// and long-form body appends. Two backends implement it: the
// Notion-compatible HTTP API client in platform/notionstore and the
// PostgreSQL store in platform/pgstore.
package store
