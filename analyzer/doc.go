// Package analyzer turns a location into a commute score.
//
// Every minute of the configured window is routed in both directions, from
// the location to the destination and back. The resulting sample set always
// holds one value per minute per direction; unreachable minutes count at the
// penalty value when the distribution is summarised. The 80th percentile of
// that distribution is the location's score.
package analyzer
