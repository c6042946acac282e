package model

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/shared/response"
)

var (
	// Whole-run preconditions
	ErrDuplicateCheckFailed = errors.New("duplicate check failed")
	ErrEmptyImport          = errors.New("no identifiers to import")

	// Per-item failures
	ErrInvalidISBN      = errors.New("invalid ISBN format")
	ErrMetadataNotFound = errors.New("metadata not found")
	ErrInvalidMetadata  = errors.New("invalid metadata record")
	ErrEntityResolution = errors.New("entity resolution failed")
	ErrUpload           = errors.New("cover upload failed")
	ErrPersistence      = errors.New("persistence failed")

	ErrImageTooLarge      = errors.New("image exceeds maximum size (5MB)")
	ErrInvalidImageFormat = errors.New("image must be JPEG, PNG or WebP")

	ErrImportJobNotFound   = errors.New("import job not found")
	ErrUnsupportedFile     = errors.New("unsupported file type, expected .csv or .xlsx")
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
	ErrInvalidEntityKind   = errors.New("invalid entity kind")
)

var importErrorMap = map[error]struct {
	Status  int
	Code    string
	Message string
}{
	ErrEmptyImport:          {Status: http.StatusBadRequest, Code: "IMPORT_EMPTY", Message: "No identifiers to import"},
	ErrUnsupportedFile:      {Status: http.StatusBadRequest, Code: "IMPORT_FILE_TYPE", Message: "Upload a .csv or .xlsx file"},
	ErrInvalidEntityKind:    {Status: http.StatusBadRequest, Code: "IMPORT_ENTITY_KIND", Message: "Entity kind must be author or publisher"},
	ErrImportJobNotFound:    {Status: http.StatusNotFound, Code: "IMPORT_JOB_NOT_FOUND", Message: "Import job does not exist"},
	ErrDuplicateCheckFailed: {Status: http.StatusServiceUnavailable, Code: "IMPORT_STORE_UNAVAILABLE", Message: "Catalog store is unavailable"},
	ErrProviderUnavailable:  {Status: http.StatusBadGateway, Code: "IMPORT_PROVIDER_UNAVAILABLE", Message: "Metadata provider is unavailable"},
}

// HandleImportError writes the envelope for a known error. Unknown errors become 500.
func HandleImportError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	for target, cfg := range importErrorMap {
		if errors.Is(err, target) {
			response.ErrorResponse(c, cfg.Status, cfg.Code, cfg.Message)
			return true
		}
	}

	log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled import error")
	response.InternalServerError(c, "Internal server error")
	return true
}
