// Package enroll stores captured templates per subject and matches new
// captures against them.
//
// Matching is a positional comparison of the encoded templates. It identifies a template that was
// captured again from the same stored image; it is not a minutiae matcher.
package enroll
