// Package table turns unlabeled results tables into normalized rows. The
// classifier locates semantic columns by matching header text against a
// keyword table; the extractor then reads scores, derives the has_errors
// flag and resolves rank badges against the reference mapping set.
package table
