// Package conditions evaluates footer assertions against an observed
// response, with operator, negation, case-sensitivity and OR-group
// semantics.
package conditions
