// Package manifest defines the tool manifest: a static, ordered list of tool
// descriptors in a package registry format.
//
// Each descriptor names a command template built from constant and variable
// tokens, the output the command produces, and the install tasks that fetch
// its artifacts. The package only offers read access, codecs and structural
// validation; resolving placeholders, installing and executing belong to the
// runner in package tool.
package manifest
