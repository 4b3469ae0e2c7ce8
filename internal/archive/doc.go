// Package archive holds the blob stores that keep the raw rows of imported
// report chunks. Objects are laid out as <date>/<run id>/chunk-<index>.json.
package archive
