// Package model defines the finish-line domain types shared by every layer.
//
// A Context owns two independent sequences:
//   - Results: finish-line observations from the timing device, ranked by Place
//   - ScannedBibs: bib numbers read by the barcode scanner, ordered by Order
//
// The engine pairs the two sequences positionally. A Result's scan "slot" is
// one of:
//   - empty: HadScan == false (the result is still waiting for a scan)
//   - hole:  HadScan == true, ScanID == 0 (a scan was expected here but removed)
//   - scan:  HadScan == true, ScanID != 0
//
// Bib and time helpers in this package are pure functions so they can be
// shared by the store, the HTTP API and the device readers.
package model
