// Package archive defines the types, collaborator interfaces, and error
// taxonomy shared by the page archiving pipeline, its storage backends, and
// the run service.
package archive
