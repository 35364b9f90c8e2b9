// Package stock is the daily stock trade domain ranked by the xsort
// command: the Trade record, its sort keys and binary codec, CSV input and
// output, date filters and a synthetic data generator.
package stock
