// Package catalog owns the rights records and the published catalog.
//
// Rights records and catalog entries live in one SQLite database accessed
// through sqlx. Every mutation for a source id runs under the keylock for
// that id, and publish re-reads the rights record inside an immediate
// transaction before it inserts the entry, so a concurrent downgrade either
// lands first (publish is refused) or after (reconcile retracts).
//
// The package also provides the two pipeline stages that touch rights: the
// rights gate (Gate) and the publisher (Publisher).
package catalog
