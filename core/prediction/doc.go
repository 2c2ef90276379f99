// Package prediction forecasts parking availability for an arrival time.
//
// A Model maps the two time features the offline training relies on,
// day of week and minute of day, to the probability that at least one spot
// is empty. Two backends are provided: a static weekday/weekend hourly table
// and a random-forest classifier loaded from an exported JSON artifact. The
// Adapter wraps either one behind Predict and derives the expected wait.
package prediction
