// Package indicator computes technical indicators over closed candle windows.
//
// The incremental types (EMAState, RSIState, SMMA) are O(1) per update and
// are the building blocks for the pure window functions in window.go.
// Identical input always produces bit-identical output: every value is a
// fixed-order fold over the input slice.
package indicator
