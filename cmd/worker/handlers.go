package main

import (
	"github.com/hibiken/asynq"

	bookJob "bookcatalog-backend/internal/domains/book/job"
	"bookcatalog-backend/internal/shared"
	"bookcatalog-backend/pkg/container"
)

// HandlerRegistry holds all job handlers
type HandlerRegistry struct {
	importISBNs        *bookJob.ImportISBNsHandler
	importEntity       *bookJob.ImportEntityHandler
	deleteCover        *bookJob.DeleteCoverHandler
	retryFailedImports *bookJob.RetryFailedImportsHandler
}

func initializeHandlers(c *container.Container) *HandlerRegistry {
	return &HandlerRegistry{
		importISBNs:        bookJob.NewImportISBNsHandler(c.ImportService),
		importEntity:       bookJob.NewImportEntityHandler(c.ImportService),
		deleteCover:        bookJob.NewDeleteCoverHandler(c.Storage),
		retryFailedImports: bookJob.NewRetryFailedImportsHandler(c.ImportService, c.Config.Job.RetryFailedLimit),
	}
}

// RegisterHandlers registers all handlers with the mux
func (h *HandlerRegistry) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(shared.TypeImportISBNs, h.importISBNs.ProcessTask)
	mux.HandleFunc(shared.TypeImportEntity, h.importEntity.ProcessTask)
	mux.HandleFunc(shared.TypeDeleteCover, h.deleteCover.ProcessTask)
	mux.HandleFunc(shared.TypeRetryFailedImports, h.retryFailedImports.ProcessTask)
}
