// Package fileutil holds the small file helpers the supervisor needs for its
// state directory: recursive directory creation, atomic writes through a
// temp file and rename, and ".bak" backups taken before a file is replaced.
package fileutil
