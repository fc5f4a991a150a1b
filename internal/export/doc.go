// Package export renders confirmed results into the finish-line artifact.
//
// The artifact is a headerless CSV with CRLF line endings and three columns:
// position, bib number, and time of day. It is a projection of the store:
// any copy can be regenerated from the confirmed rows alone, so the writer
// offers only two operations, appending new rows and atomically replacing
// the whole file.
//
// An XLSX snapshot of the full board is available for operators who want
// the data in a spreadsheet.
package export
