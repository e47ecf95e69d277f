// Package mixing implements covariance-domain optimal mixing for two
// channels.
//
// Given the covariance Cx of an input pair, a target covariance Cy and a
// prototype matrix Q, the solver finds the mixing matrix M for which
// M·Cx·Mᴴ matches Cy while M·x stays as close as possible to Q·x (Vilkamo,
// Bäckström and Kuntz, "Optimized covariance domain framework for
// time-frequency processing of spatial audio", JAES 2013). When Cx is
// rank-deficient the unmatched part is returned as a residual covariance
// that a decorrelated signal can fill.
package mixing
