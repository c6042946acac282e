package shared

// Asynq task types
const (
	TypeImportISBNs        = "book:import_isbns"
	TypeImportEntity       = "book:import_entity"
	TypeDeleteCover        = "book:delete_cover"
	TypeRetryFailedImports = "book:retry_failed_imports"
)

// Asynq queues, weighted by the worker
const (
	QueueImport      = "import"
	QueueMaintenance = "maintenance"
	QueueLow         = "low"
)

// QueueWeights is the asynq priority map for the worker server
var QueueWeights = map[string]int{
	QueueImport:      10,
	QueueMaintenance: 5,
	QueueLow:         2,
}
