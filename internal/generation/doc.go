// Package generation defines the contract with the external streaming
// text-generation service and the helpers built on it: prompt rendering
// and collection of a streamed response under total and idle timeouts.
// Concrete clients live under internal/platform.
package generation
