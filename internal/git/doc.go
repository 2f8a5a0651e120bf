// Package git locates the project a book belongs to and the revision it is
// at, so approvals can record what was reviewed.
package git
