// Package featurestore owns the item vectors and their identities.
//
// Identities are insertion offsets: the first appended vector is 0, the
// next 1, and so on. Rows are never moved, mutated or deleted, so a vector
// slice handed out by a Snapshot stays valid for the lifetime of the store.
//
// Besides the vector every row carries an optional key (the identity-eligible
// key supplied by the feature-extraction collaborator) and an opaque metadata
// record.
package featurestore
