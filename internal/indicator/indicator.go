// Package indicator provides technical indicator calculations over the
// rolling price windows held in ring buffers.
package indicator
