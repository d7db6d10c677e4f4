// Package checks implements the individual integrity checks run by the integrity feature
// and the integrity command.
package checks
