// Package detector compares fetched snapshots with stored state.
//
// Item sets: an item is new iff its id is not in the seen set. New items
// are returned oldest first.
//
// Rankings: an entity changed iff any of its three ranks or its progress
// summary differs from the stored record. Standings order entities by
// progress score, then by best world rank.
package detector
