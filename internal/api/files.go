package api

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StoredFile is one upload accepted by UploadFiles.
type StoredFile struct {
	Original string `json:"original"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

const uploadedKey = "api.uploaded"

// UploadFiles stores every multipart file of field before the handler runs.
// A file above maxBytes rejects the whole request; a request that is not
// multipart passes through with no files.
func UploadFiles(blob BlobStore, field string, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.Next()
			return
		}
		headers := form.File[field]
		for _, h := range headers {
			if h.Size > maxBytes {
				c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(
					fmt.Sprintf("File %s exceeds the %d byte limit", safeName(h.Filename), maxBytes),
					[]string{field}))
				return
			}
		}

		stored := make([]StoredFile, 0, len(headers))
		for _, h := range headers {
			sf, err := putOne(blob, h)
			if err != nil {
				discard(blob, stored)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error()})
				return
			}
			stored = append(stored, sf)
		}
		c.Set(uploadedKey, stored)
		c.Next()
	}
}

func putOne(blob BlobStore, h *multipart.FileHeader) (StoredFile, error) {
	f, err := h.Open()
	if err != nil {
		return StoredFile{}, err
	}
	defer f.Close()
	name, n, err := blob.Put(h.Filename, f)
	if err != nil {
		return StoredFile{}, err
	}
	return StoredFile{Original: safeName(h.Filename), Name: name, Size: n}, nil
}

// UploadedFiles returns the files stored by UploadFiles for this request.
func UploadedFiles(c *gin.Context) []StoredFile {
	v, ok := c.Get(uploadedKey)
	if !ok {
		return nil
	}
	files, _ := v.([]StoredFile)
	return files
}

func discard(blob BlobStore, files []StoredFile) {
	for _, f := range files {
		_ = blob.Delete(f.Name)
	}
}
