// Package vterrors centralizes a two-tier error taxonomy: transport
// errors (network faults, HTTP non-2xx) and application errors
// (adapter-raised or server-returned). Every error that crosses a
// component boundary in this module is, or wraps, a *vterrors.Error.
package vterrors
