// Package parser reads greq request-definition files: three sections
// (header, content, footer) separated by delimiter lines, where the header
// carries execution metadata, the content an HTTP request, and the footer a
// list of assertion conditions. It also implements the inheritance merge
// used by extends chains.
package parser
