// Package binaryrepo stores named binary blobs (media payloads, model
// weights, tensors) for a tenant-scoped owner on either the local
// filesystem or S3-compatible object storage. The backend is selected
// once at construction through the Factory; both satisfy the same Store
// contract.
package binaryrepo

// ObjectType categorizes stored blobs. On the object-storage backend
// each type maps to its own bucket; bucket names can be overridden per
// type in configuration.
type ObjectType int

const (
	ObjectTypeUndefined ObjectType = iota
	ObjectTypeImage
	ObjectTypeVideo
	ObjectTypeThumbnail
	ObjectTypeModel
	ObjectTypeTensor
	ObjectTypeResultMedia
	ObjectTypeCodeDeployment
)

// String returns the canonical name of the object type, which doubles as
// its default bucket name.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeImage:
		return "images"
	case ObjectTypeVideo:
		return "videos"
	case ObjectTypeThumbnail:
		return "thumbnails"
	case ObjectTypeModel:
		return "models"
	case ObjectTypeTensor:
		return "tensors"
	case ObjectTypeResultMedia:
		return "resultmedia"
	case ObjectTypeCodeDeployment:
		return "codedeployments"
	default:
		return "undefined"
	}
}
