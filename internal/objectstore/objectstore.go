// Package objectstore abstracts the temporary object storage used to stage
// images for inference. Uploads are short-lived: each object exists only long
// enough for the inference provider to fetch it, then is deleted best-effort.
package objectstore

import "context"

// Storage is the minimal surface the processing pipeline needs.
type Storage interface {
	// Upload writes data under path with the given content type.
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// PublicURL returns a URL from which the object can be fetched without
	// credentials, valid at least for the duration of one inference call.
	PublicURL(ctx context.Context, path string) (string, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}
