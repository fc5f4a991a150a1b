// Package tmreader decodes the line protocol of a Time Machine finish-line
// timer in cross-country mode.
//
// The timer emits one CRLF-terminated record per finish. The first byte is a
// control character: 0x17 for a primary record (position and time) and 0x14
// for a select record, which also carries a bib number. Fields are fixed
// width:
//
//	[9:13]   timer position
//	[14:26]  elapsed time, [[hh:]mm:]ss[.ddd], space padded
//	[29:33]  bib number (select records only)
//
// Serial reads arrive in arbitrary chunks, so a Framer keeps the unterminated
// tail of each chunk until the rest of the line shows up.
package tmreader
