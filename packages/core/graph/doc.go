// Package graph resolves the file relationships of a document: extends
// chains merged at load time and depends-on orderings walked over canonical
// filesystem paths, both cycle-checked.
package graph
