// Package utils provides shared helpers for the commute score engine.
//
// It contains:
//   - Coordinate type and great-circle distance
//   - Local feet/degree projection used by the grid lattice
//   - Service-day clock parsing and formatting
package utils
