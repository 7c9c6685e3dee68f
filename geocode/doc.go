// Package geocode turns addresses into coordinates. It is only used to
// locate the destination and ad-hoc addresses, never while routing.
package geocode
