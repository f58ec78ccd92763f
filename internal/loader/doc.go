// Package loader finds the source files of a project.
//
// It walks the project root, keeps files with a known source extension,
// and skips dependency and build directories, symlinks, empty files and
// anything matched by a .connoisseurignore file at the root. Size and
// binary checks are left to the chunker, which falls back to a whole-file
// chunk instead of dropping the file.
package loader
