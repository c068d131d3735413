// Package pipeline implements the decision engine that turns raw audio bytes
// into a Verdict.
//
// The engine runs the stages in a fixed order:
//
//	normalize -> silence gate -> extract -> stationarity gate -> classify -> clarity gate
//
// A failed gate short-circuits the remaining stages and produces an
// unrecognized Verdict. Failures that prevent the pipeline from running are
// reported as *Error values carrying a Kind, never as verdicts.
package pipeline
