// Package commutescore wires the schedule index, walking estimator, router,
// analyzer and grid controller into an Engine configured from a single
// config.AppConfig.
package commutescore
