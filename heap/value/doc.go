// Package value defines the tagged word representation shared by the heap
// and its embedders.
//
// A Value is a single uint64 whose low 3 bits select the type. Fixnums and
// the special constants (Nil, True, Unbound, Dead) are immediates; every
// other tag wraps an 8-aligned virtual heap address minted by the heap
// package. Values are plain words: they may be copied, compared and stored
// freely, and identity comparison (==) is object identity for heap tags.
//
// The package deliberately knows nothing about object layout. Resolving a
// Value to its car, characters or slots is the heap package's job.
package value
