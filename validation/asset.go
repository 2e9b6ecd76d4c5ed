package validation

import (
	"bytes"
	"path"
	"strings"
)

type AssetType string

const (
	AssetTypeGLB  AssetType = "glb"
	AssetTypePNG  AssetType = "png"
	AssetTypeJPEG AssetType = "jpeg"
	AssetTypeGIF  AssetType = "gif"
)

var magicBytes = map[AssetType][]byte{
	AssetTypeGLB:  {0x67, 0x6C, 0x54, 0x46}, // "glTF"
	AssetTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	AssetTypeJPEG: {0xFF, 0xD8, 0xFF},
	AssetTypeGIF:  {0x47, 0x49, 0x46, 0x38},
}

var contentTypes = map[AssetType]string{
	AssetTypeGLB:  "model/gltf-binary",
	AssetTypePNG:  "image/png",
	AssetTypeJPEG: "image/jpeg",
	AssetTypeGIF:  "image/gif",
}

var extensionTypes = map[string]string{
	".glb":  "model/gltf-binary",
	".fbx":  "application/octet-stream",
	".usdz": "model/vnd.usdz+zip",
	".obj":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// DetectContentType sniffs the leading bytes of a downloaded asset and falls
// back to the URL's extension when the signature is unknown.
func DetectContentType(data []byte, sourceURL string) string {
	for assetType, signature := range magicBytes {
		if bytes.HasPrefix(data, signature) {
			return contentTypes[assetType]
		}
	}

	name := sourceURL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ct, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}

	return "application/octet-stream"
}

// IsImage reports whether the bytes look like a raster image the thumbnail
// pipeline can decode.
func IsImage(data []byte) bool {
	for _, assetType := range []AssetType{AssetTypePNG, AssetTypeJPEG, AssetTypeGIF} {
		if bytes.HasPrefix(data, magicBytes[assetType]) {
			return true
		}
	}
	return false
}
