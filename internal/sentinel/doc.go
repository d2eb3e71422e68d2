// Package sentinel defines Error, a string type for declaring sentinel errors
// as constants. Values compare by content, so errors.Is keeps working through
// fmt.Errorf("%w") chains.
package sentinel
