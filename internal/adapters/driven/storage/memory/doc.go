// Package memory provides in-memory driven adapters, used as test fakes
// and by dry runs.
package memory
