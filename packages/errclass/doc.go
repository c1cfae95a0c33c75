// Package errclass defines outcome categories and the registry that maps
// them to report buckets.
//
// Categories form a tree: a category registered for a parent also catches
// outcomes tagged with any of its descendants. Registrations are consulted in
// the order they were made and the first match wins.
package errclass
