// Package archive copies media from a OneDrive folder into a dated local
// directory tree. It walks the remote folder, classifies each file as a
// picture or a video, plans a destination from the file's creation date,
// downloads what is missing, and records every archived item in a SQLite
// state database so later runs only fetch new or changed items.
//
// The package also removes byte-identical duplicates from an archive.
package archive
