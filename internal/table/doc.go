// Package table turns raw spreadsheet rows into a dated, column-labelled view.
//
// NormalizeHeader deduplicates the header row ("a","a" → "a","a.1"), mapping
// empty cells to the "u" placeholder first. NewDated parses the first column
// of each data row as a date, drops rows that do not parse, and sorts the rest
// ascending. Number and ParseDate are the value coercions used everywhere
// else: unparseable numbers become 0 and unparseable dates drop the row, so
// nothing in this package returns an error.
package table
