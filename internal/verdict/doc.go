// Package verdict judges scenario results against named thresholds.
//
// Judge takes a metrics.Result and the scenario's Kind and returns PASS or
// FAIL together with the checks that drove the decision. A result with no
// attempted players, a broken terminal-bucket invariant or an unknown kind is
// always FAIL. Advisory checks are reported but never change the outcome.
package verdict
