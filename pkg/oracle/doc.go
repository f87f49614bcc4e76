// Package oracle provides ports.Oracle middleware (timeouts, circuit breaking)
// and a function adapter for in-process similarity functions.
package oracle
