// Package units has the decimal byte size multipliers.
package units

const (
	Kilobyte = 1000
	Kb       = Kilobyte
	Megabyte = Kilobyte * Kilobyte
	Mb       = Megabyte
	Gigabyte = Megabyte * Kilobyte
	Gb       = Gigabyte
)
