// Package memory provides an in-memory implementation of the correlation
// and session stores. It is safe for concurrent use and suitable for
// single-instance deployments; entries are lost on restart.
//
// A background goroutine sweeps expired records periodically. Token material
// is encrypted at rest when an encryptor is configured.
package memory
