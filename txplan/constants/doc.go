// Package constants centralizes metric names, span names and defaults shared by txplan packages.
package constants
