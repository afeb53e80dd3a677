// Package domain models Storm Prediction Center (SPC) convective and fire
// weather outlooks and the rules for turning an outlook archive into
// hazard-specific polygon collections.
//
// # Data Source
//
// Outlook geometry is archived by the Iowa Environmental Mesonet (IEM) at
// https://mesonet.agron.iastate.edu/cgi-bin/request/gis/spc_outlooks.py. A
// request for one UTC day returns a zip of shapefiles holding every cycle
// issued that day for the requested outlook day and type.
//
// # SPC Conventions
//
// Issuance cycles (UTC) are fixed per outlook day and type:
//
//	Convective day 1: 01z, 06z, 13z, 1630z, 20z
//	Convective day 2: 07z, 17z
//	Convective day 3: 08z, 20z
//	Fire weather:     07z, 17z
//
// The shapefile CYCLE attribute stores the issuance hour, so the 1630z
// convective update appears as 16. When CYCLE is missing or negative the
// cycle is recovered from PRODISS, the product issuance time (YYYYMMDDHHMM).
//
// Category families and their thresholds, in ascending severity:
//
//	CATEGORICAL: TSTM, MRGL, SLGT, ENH, MDT, HIGH
//	TORNADO:     0.02, 0.05, 0.10, 0.15, 0.30, 0.45, 0.60, SIGN
//	WIND, HAIL:  0.05, 0.15, 0.30, 0.45, 0.60, SIGN
//	FIRE:        ELEV, CRIT, EXTM
//	DRY THUNDER: ISODRYT (IDRT), DRYT, SCTDRYT (SDRT)
//
// Probabilities are the chance of the hazard within 25 miles of a point.
// SIGN marks the hatched area of significant (EF2+ tornado, 65kt+ wind,
// 2in+ hail) potential and ranks above every numeric threshold.
//
// # Geometry Encodings
//
// IEM serves two geometry encodings. Layered polygons are non-overlapping
// bands: each one excludes the higher-risk areas nested inside it.
// Non-layered polygons are "at or above" contours that overlap their
// higher thresholds. Both are already the correct boundary for their
// threshold, so extraction labels and orders them without any dissolve.
// Layered is preferred when both are present; see [SelectEncoding].
package domain
