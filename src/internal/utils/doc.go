// Package utils contains small path, file and address helpers shared by
// keen-dns packages.
package utils
