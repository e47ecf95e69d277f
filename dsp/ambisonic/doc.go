// Package ambisonic provides first-order spherical-harmonic helpers: the
// real SH basis, channel-order and normalisation conversion, rotation
// matrices and a geodesic direction grid.
//
// The internal convention is ACN channel order (W, Y, Z, X) with N3D
// normalisation, for which a unit plane wave from direction u encodes to
// (1, √3·u_y, √3·u_z, √3·u_x). Azimuth is measured counter-clockwise from the
// front (+x) towards the left (+y); elevation upwards from the horizontal
// plane. Angles are in degrees unless a name says otherwise.
package ambisonic
