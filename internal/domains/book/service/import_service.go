package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"bookcatalog-backend/internal/config"
	activityModel "bookcatalog-backend/internal/domains/activity/model"
	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/domains/book/repository"
	"bookcatalog-backend/internal/infrastructure/metrics"
	"bookcatalog-backend/internal/shared"
)

// errAlreadyCatalogued rolls back an item whose book appeared between the
// duplicate check and the write
var errAlreadyCatalogued = errors.New("book already catalogued")

// SleepFunc pauses between items; it returns early when ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunRequest describes one import run
type RunRequest struct {
	Kind       model.ImportKind
	EntityName string
	ISBNs      []string
	ActorID    *uuid.UUID
	RetryOf    *uuid.UUID
}

// scope is the entity an entity-scoped run was started for
type scope struct {
	kind model.EntityKind
	name string
}

// The name is trimmed the same way the resolver trims names, so lookups in
// the run's resolution map find it.
func (r RunRequest) scope() *scope {
	name := strings.TrimSpace(r.EntityName)
	switch r.Kind {
	case model.ImportKindAuthor:
		return &scope{kind: model.EntityAuthor, name: name}
	case model.ImportKindPublisher:
		return &scope{kind: model.EntityPublisher, name: name}
	}
	return nil
}

// ImportService coordinates a run: duplicate split, bulk fetch, batch-wide
// entity resolution, then a sequential paced loop of upload and persist.
type ImportService struct {
	detector   *DuplicateDetector
	resolver   *EntityResolver
	provider   MetadataProvider
	uploader   Uploader
	writer     repository.BookWriter
	jobs       repository.ImportJobRepository
	enqueuer   TaskEnqueuer
	activities ActivityEmitter

	cfg   config.ImportConfig
	sleep SleepFunc

	// single lookups for identifiers the bulk response left out
	refetchRetries int
	refetchDelay   time.Duration
}

type Option func(*ImportService)

func WithSleep(fn SleepFunc) Option {
	return func(s *ImportService) { s.sleep = fn }
}

// WithRefetch sets the retry budget of the single lookups made for
// identifiers missing from a bulk response
func WithRefetch(maxRetries int, initialDelay time.Duration) Option {
	return func(s *ImportService) {
		s.refetchRetries = maxRetries
		s.refetchDelay = initialDelay
	}
}

// WithActivities enables timeline activities for runs that carry an actor
func WithActivities(emitter ActivityEmitter) Option {
	return func(s *ImportService) { s.activities = emitter }
}

// WithJobs enables import_jobs tracking and async runs
func WithJobs(jobs repository.ImportJobRepository, enqueuer TaskEnqueuer) Option {
	return func(s *ImportService) {
		s.jobs = jobs
		s.enqueuer = enqueuer
	}
}

func NewImportService(
	detector *DuplicateDetector,
	resolver *EntityResolver,
	provider MetadataProvider,
	uploader Uploader,
	writer repository.BookWriter,
	cfg config.ImportConfig,
	opts ...Option,
) *ImportService {
	s := &ImportService{
		detector: detector,
		resolver: resolver,
		provider: provider,
		uploader: uploader,
		writer:   writer,
		cfg:      cfg,
		sleep:    sleepContext,

		refetchRetries: 3,
		refetchDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =====================================================
// ENTRY POINTS
// =====================================================

// Import runs an identifier list synchronously
func (s *ImportService) Import(ctx context.Context, isbns []string, actorID *uuid.UUID) (*model.ImportResult, error) {
	return s.Execute(ctx, RunRequest{Kind: model.ImportKindISBNs, ISBNs: isbns, ActorID: actorID})
}

// ImportByEntity runs an author or publisher scoped import. Without ISBNs the
// provider is asked for the entity's books first.
func (s *ImportService) ImportByEntity(ctx context.Context, kind model.EntityKind, name string, isbns []string, actorID *uuid.UUID) (*model.ImportResult, error) {
	importKind, err := importKindFor(kind)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, RunRequest{Kind: importKind, EntityName: name, ISBNs: isbns, ActorID: actorID})
}

// Execute runs req without job tracking
func (s *ImportService) Execute(ctx context.Context, req RunRequest) (*model.ImportResult, error) {
	isbns := req.ISBNs
	sc := req.scope()

	if sc != nil && sc.name == "" {
		return nil, fmt.Errorf("%w: entity name is required", model.ErrEmptyImport)
	}

	if sc != nil && len(isbns) == 0 {
		discovered, err := s.provider.DiscoverISBNs(ctx, sc.kind, sc.name, s.cfg.MaxISBNs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
		}
		isbns = discovered
	}

	if len(isbns) == 0 {
		return nil, model.ErrEmptyImport
	}

	return s.run(ctx, req.Kind, isbns, sc, req.ActorID), nil
}

// ExecuteTracked records the run as an import job and executes it inline
func (s *ImportService) ExecuteTracked(ctx context.Context, req RunRequest) (*model.ImportJob, *model.ImportResult, error) {
	if s.jobs == nil {
		result, err := s.Execute(ctx, req)
		return nil, result, err
	}

	job, err := s.createJob(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.RunJob(ctx, job.ID, req)
	if err != nil {
		return job, nil, err
	}
	return job, result, nil
}

// Enqueue records a pending job and hands it to the worker
func (s *ImportService) Enqueue(ctx context.Context, req RunRequest) (*model.ImportJob, error) {
	if s.jobs == nil || s.enqueuer == nil {
		return nil, fmt.Errorf("async imports are not configured")
	}
	sc := req.scope()
	if len(req.ISBNs) == 0 && sc == nil {
		return nil, model.ErrEmptyImport
	}
	if sc != nil && sc.name == "" {
		return nil, fmt.Errorf("%w: entity name is required", model.ErrEmptyImport)
	}

	job, err := s.createJob(ctx, req)
	if err != nil {
		return nil, err
	}

	task, err := newImportTask(job.ID, req)
	if err != nil {
		return nil, err
	}

	info, err := s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(shared.QueueImport),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
	)
	if err != nil {
		failed := model.NewImportResult()
		failed.Aborted = true
		failed.AddErrorDetail("enqueue failed: %v", err)
		if cErr := s.jobs.Complete(ctx, job.ID, failed); cErr != nil {
			log.Error().Err(cErr).Str("job_id", job.ID.String()).Msg("Failed to close unqueued import job")
		}
		return nil, fmt.Errorf("failed to enqueue import: %w", err)
	}

	log.Info().
		Str("job_id", job.ID.String()).
		Str("task_id", info.ID).
		Str("kind", string(req.Kind)).
		Int("isbns", len(req.ISBNs)).
		Msg("Import queued")

	return job, nil
}

// RunJob executes a tracked job: processing, run, completed
func (s *ImportService) RunJob(ctx context.Context, jobID uuid.UUID, req RunRequest) (*model.ImportResult, error) {
	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		return nil, err
	}

	result, runErr := s.Execute(ctx, req)
	if runErr != nil {
		result = model.NewImportResult()
		result.Aborted = true
		result.AddErrorDetail("%v", runErr)
	}

	// The run may have consumed ctx; the final status must still land
	if err := s.jobs.Complete(context.WithoutCancel(ctx), jobID, result); err != nil {
		return result, err
	}
	return result, runErr
}

func (s *ImportService) GetJob(ctx context.Context, id uuid.UUID) (*model.ImportJob, error) {
	if s.jobs == nil {
		return nil, model.ErrImportJobNotFound
	}
	return s.jobs.GetByID(ctx, id)
}

// RetryFailed queues the failed identifiers of partial jobs as new jobs
func (s *ImportService) RetryFailed(ctx context.Context, limit int) (int, error) {
	if s.jobs == nil {
		return 0, nil
	}

	jobs, err := s.jobs.ListRetryable(ctx, limit)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, job := range jobs {
		parent := job.ID
		req := RunRequest{
			Kind:    job.Kind,
			ISBNs:   job.FailedISBNs,
			ActorID: job.ActorID,
			RetryOf: &parent,
		}
		if job.EntityName != nil {
			req.EntityName = *job.EntityName
		}

		if _, err := s.Enqueue(ctx, req); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to requeue failed imports")
			continue
		}
		if err := s.jobs.MarkRetried(ctx, job.ID); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to mark job retried")
			continue
		}
		queued++
	}

	return queued, nil
}

// SearchEntities proxies the provider's author/publisher name search
func (s *ImportService) SearchEntities(ctx context.Context, kind model.EntityKind, query string, page, pageSize int) ([]string, error) {
	if _, err := importKindFor(kind); err != nil {
		return nil, err
	}
	names, err := s.provider.SearchNames(ctx, kind, query, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	return names, nil
}

// DiscoverISBNs lists identifiers the provider attributes to an entity
func (s *ImportService) DiscoverISBNs(ctx context.Context, kind model.EntityKind, name string) ([]string, error) {
	if _, err := importKindFor(kind); err != nil {
		return nil, err
	}
	isbns, err := s.provider.DiscoverISBNs(ctx, kind, name, s.cfg.MaxISBNs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}
	return isbns, nil
}

func (s *ImportService) createJob(ctx context.Context, req RunRequest) (*model.ImportJob, error) {
	job := &model.ImportJob{
		ID:      uuid.New(),
		ActorID: req.ActorID,
		Kind:    req.Kind,
		ISBNs:   req.ISBNs,
		Status:  model.JobStatusPending,
		RetryOf: req.RetryOf,
	}
	if sc := req.scope(); sc != nil && sc.name != "" {
		name := sc.name
		job.EntityName = &name
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func newImportTask(jobID uuid.UUID, req RunRequest) (*asynq.Task, error) {
	var (
		taskType string
		payload  []byte
		err      error
	)

	if sc := req.scope(); sc != nil {
		taskType = shared.TypeImportEntity
		payload, err = json.Marshal(model.ImportEntityPayload{
			JobID:      jobID,
			EntityType: sc.kind,
			EntityName: sc.name,
			ISBNs:      req.ISBNs,
			ActorID:    req.ActorID,
		})
	} else {
		taskType = shared.TypeImportISBNs
		payload, err = json.Marshal(model.ImportISBNsPayload{
			JobID:   jobID,
			ISBNs:   req.ISBNs,
			ActorID: req.ActorID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import payload: %w", err)
	}

	return asynq.NewTask(taskType, payload), nil
}

func importKindFor(kind model.EntityKind) (model.ImportKind, error) {
	switch kind {
	case model.EntityAuthor:
		return model.ImportKindAuthor, nil
	case model.EntityPublisher:
		return model.ImportKindPublisher, nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrInvalidEntityKind, kind)
}

// =====================================================
// THE RUN
// =====================================================

type pendingItem struct {
	isbn   string
	record *model.CatalogRecord
}

type resolutions struct {
	authors    *model.Resolution
	publishers *model.Resolution
	subjects   *model.Resolution
}

// run never fails as a whole: every identifier ends up in exactly one of
// Added, Duplicates or Errors
func (s *ImportService) run(ctx context.Context, kind model.ImportKind, isbns []string, sc *scope, actorID *uuid.UUID) *model.ImportResult {
	start := time.Now()
	result := model.NewImportResult()

	metrics.ImportRuns.WithLabelValues(string(kind)).Inc()
	defer func() {
		metrics.AddImportItems(result.Added, result.Duplicates, result.Errors)
		metrics.ObserveImportDuration(start)

		log.Info().
			Str("kind", string(kind)).
			Int("requested", len(isbns)).
			Int("added", result.Added).
			Int("duplicates", result.Duplicates).
			Int("errors", result.Errors).
			Dur("took", time.Since(start)).
			Msg("Import finished")
	}()

	// Step 1: normalize
	valid := make([]string, 0, len(isbns))
	for _, raw := range isbns {
		isbn := model.NormalizeISBN(raw)
		if isbn == "" {
			result.RecordFailed(raw, model.StatePending, model.ErrInvalidISBN)
			continue
		}
		valid = append(valid, isbn)
	}
	if len(valid) == 0 {
		return result
	}

	// Step 2: duplicate split
	split, err := s.detector.Detect(ctx, valid)
	if err != nil {
		result.Aborted = true
		result.FailAll(valid, model.StateError, model.StatePending, err)
		return result
	}
	for _, isbn := range split.Duplicates {
		result.RecordDuplicate(isbn)
	}
	result.Logf("%d new, %d already catalogued", len(split.New), len(split.Duplicates))
	if len(split.New) == 0 {
		return result
	}

	// Step 3: bulk fetch, single lookups for what the bulk call missed, validate
	records := s.provider.FetchBulk(ctx, split.New)
	if recovered := s.refetchMissing(ctx, split.New, records); recovered > 0 {
		result.Logf("%d records recovered by single lookup", recovered)
	}

	items := make([]pendingItem, 0, len(split.New))
	fetched := 0
	for i, isbn := range split.New {
		raw := records[i]
		if raw == nil {
			continue
		}
		fetched++
		rec, err := raw.ToCatalogRecord()
		if err != nil {
			result.RecordFailed(isbn, model.StateMetadataFetched, err)
			continue
		}
		items = append(items, pendingItem{isbn: isbn, record: rec})
	}

	if fetched == 0 {
		result.FailAll(split.New, model.StateFailed, model.StateDuplicateChecked,
			fmt.Errorf("%w: provider returned no records for %d identifiers", model.ErrMetadataNotFound, len(split.New)))
		return result
	}
	for i, isbn := range split.New {
		if records[i] == nil {
			result.RecordFailed(isbn, model.StateDuplicateChecked, model.ErrMetadataNotFound)
		}
	}
	if len(items) == 0 {
		return result
	}

	// Step 4: batch-wide resolution
	res, err := s.resolveAll(ctx, items, sc, result)
	if err != nil {
		for _, it := range items {
			result.RecordError(it.isbn, model.StateEntitiesResolving, err)
		}
		return result
	}

	// Step 5: sequential, paced
	for i, it := range items {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.ItemDelay); err != nil {
				for _, rest := range items[i:] {
					result.RecordError(rest.isbn, model.StateEntitiesResolved, err)
				}
				break
			}
		}

		bookID, created, stage, err := s.processItem(ctx, it, res, sc, result)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("isbn", it.isbn).Str("stage", string(stage)).Msg("Import item failed")
			result.RecordError(it.isbn, stage, err)
		case created:
			result.RecordAdded(it.isbn, bookID)
		default:
			result.RecordDuplicate(it.isbn)
		}
	}

	s.emitActivities(ctx, actorID, result)
	return result
}

// refetchMissing fills nil entries of records with single lookups, at most
// RefetchLimit of them. Returns how many were found.
func (s *ImportService) refetchMissing(ctx context.Context, isbns []string, records []*model.RawRecord) int {
	if s.cfg.RefetchLimit <= 0 {
		return 0
	}

	attempted, recovered := 0, 0
	for i, isbn := range isbns {
		if records[i] != nil {
			continue
		}
		if attempted == s.cfg.RefetchLimit {
			log.Warn().Int("limit", s.cfg.RefetchLimit).Msg("Single lookup limit reached, remaining identifiers count as not found")
			break
		}
		attempted++

		if rec := s.provider.FetchOne(ctx, isbn, s.refetchRetries, s.refetchDelay); rec != nil {
			records[i] = rec
			recovered++
		}
	}
	return recovered
}

// resolveAll resolves authors and publishers once for the whole batch.
// Subjects are best effort: a failure only drops subject links.
func (s *ImportService) resolveAll(ctx context.Context, items []pendingItem, sc *scope, result *model.ImportResult) (*resolutions, error) {
	var authors, publishers, subjects []string
	for _, it := range items {
		authors = append(authors, it.record.Authors...)
		if it.record.Publisher != "" {
			publishers = append(publishers, it.record.Publisher)
		}
		subjects = append(subjects, it.record.Subjects...)
	}
	if sc != nil {
		switch sc.kind {
		case model.EntityAuthor:
			authors = append(authors, sc.name)
		case model.EntityPublisher:
			publishers = append(publishers, sc.name)
		}
	}

	res := &resolutions{}
	var err error

	if res.authors, err = s.resolver.Resolve(ctx, model.EntityAuthor, authors); err != nil {
		return nil, err
	}
	if res.publishers, err = s.resolver.Resolve(ctx, model.EntityPublisher, publishers); err != nil {
		return nil, err
	}
	if res.subjects, err = s.resolver.Resolve(ctx, model.EntitySubject, subjects); err != nil {
		log.Warn().Err(err).Msg("Subject resolution failed, continuing without subjects")
		result.AddErrorDetail("subjects not linked: %v", err)
		res.subjects = model.NewResolution(model.EntitySubject)
	}

	for _, r := range []*model.Resolution{res.authors, res.publishers, res.subjects} {
		for _, name := range r.Created {
			result.RecordCreated(r.Kind, r.IDs[name], name)
		}
	}
	result.Logf("resolved %d authors, %d publishers, %d subjects",
		len(res.authors.IDs), len(res.publishers.IDs), len(res.subjects.IDs))

	return res, nil
}

// processItem runs one item from EntitiesResolved to Done. On failure the
// returned state is the stage the item was in.
func (s *ImportService) processItem(ctx context.Context, it pendingItem, res *resolutions, sc *scope, result *model.ImportResult) (uuid.UUID, bool, model.ItemState, error) {
	rec := it.record
	book := rec.Book

	// Authors in source order; the first one is the primary author
	authorIDs := make([]uuid.UUID, 0, len(rec.Authors))
	for _, name := range rec.Authors {
		id, ok := res.authors.Lookup(name)
		if !ok {
			return uuid.Nil, false, model.StateEntitiesResolving, fmt.Errorf("%w: author %q", model.ErrEntityResolution, name)
		}
		authorIDs = append(authorIDs, id)
	}
	if len(authorIDs) == 0 && sc != nil && sc.kind == model.EntityAuthor {
		if id, ok := res.authors.Lookup(sc.name); ok {
			authorIDs = append(authorIDs, id)
		}
	}
	if len(authorIDs) > 0 {
		primary := authorIDs[0]
		book.AuthorID = &primary
	}

	publisher := rec.Publisher
	if publisher == "" && sc != nil && sc.kind == model.EntityPublisher {
		publisher = sc.name
	}
	if publisher != "" {
		id, ok := res.publishers.Lookup(publisher)
		if !ok {
			return uuid.Nil, false, model.StateEntitiesResolving, fmt.Errorf("%w: publisher %q", model.ErrEntityResolution, publisher)
		}
		book.PublisherID = &id
	}

	var subjectIDs []uuid.UUID
	for _, name := range rec.Subjects {
		if id, ok := res.subjects.Lookup(name); ok {
			subjectIDs = append(subjectIDs, id)
		}
	}

	// Media
	stage := model.StateNoMediaNeeded
	var uploaded *model.UploadedMedia
	if rec.CoverURL != "" {
		media, err := s.uploader.Upload(ctx, model.MediaSource{URL: rec.CoverURL}, s.cfg.CoverFolder)
		if err != nil {
			if s.cfg.CoverRequired {
				return uuid.Nil, false, model.StateEntitiesResolved, err
			}
			result.AddErrorDetail("%s: cover skipped: %v", it.isbn, err)
		} else {
			uploaded = media
			stage = model.StateMediaUploaded
		}
	}

	// Persist book, image and links in one transaction
	var saved *model.Book
	err := s.writer.WithTx(ctx, func(w repository.BookWriter) error {
		if uploaded != nil {
			img := &model.Image{
				URL:        uploaded.URL,
				ProviderID: uploaded.ProviderID,
				ImageType:  model.ImageTypeBookCover,
				AltText:    &book.Title,
				Metadata: map[string]string{
					"provider_id":  uploaded.ProviderID,
					"folder":       uploaded.Folder,
					"original_url": rec.CoverURL,
					"isbn":         it.isbn,
				},
			}
			if err := w.CreateImage(ctx, img); err != nil {
				return err
			}
			book.CoverImageID = &img.ID
		}

		b, created, err := w.UpsertBook(ctx, &book)
		if err != nil {
			return err
		}
		if !created {
			return errAlreadyCatalogued
		}
		saved = b
		stage = model.StatePersisted

		for _, authorID := range authorIDs {
			if err := w.LinkAuthor(ctx, b.ID, authorID); err != nil {
				return err
			}
		}
		for _, subjectID := range subjectIDs {
			if err := w.LinkSubject(ctx, b.ID, subjectID); err != nil {
				return err
			}
		}
		stage = model.StateLinked
		return nil
	})

	if err != nil {
		if uploaded != nil {
			if delErr := s.uploader.Delete(ctx, uploaded.ProviderID); delErr != nil {
				log.Error().Err(delErr).Str("provider_id", uploaded.ProviderID).Msg("Compensating cover delete failed")
				result.AddErrorDetail("%s: orphaned cover %s: %v", it.isbn, uploaded.ProviderID, delErr)
			}
		}
		if errors.Is(err, errAlreadyCatalogued) {
			return uuid.Nil, false, model.StateSkipped, nil
		}
		return uuid.Nil, false, stage, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	return saved.ID, true, model.StateDone, nil
}

// emitActivities records book_added and *_created timeline entries for the actor
func (s *ImportService) emitActivities(ctx context.Context, actorID *uuid.UUID, result *model.ImportResult) {
	if s.activities == nil || actorID == nil {
		return
	}

	var candidates []activityModel.ActivityData
	for _, item := range result.Items {
		if item.State != model.StateDone || item.BookID == nil {
			continue
		}
		candidates = append(candidates, activityModel.ActivityData{
			UserID:       *actorID,
			ActivityType: activityModel.ActivityBookAdded,
			EntityType:   activityModel.EntityBook,
			EntityID:     *item.BookID,
			Data:         map[string]interface{}{"isbn": item.ISBN},
		})
	}
	for _, e := range result.CreatedEntities[model.EntityAuthor] {
		candidates = append(candidates, activityModel.ActivityData{
			UserID:       *actorID,
			ActivityType: activityModel.ActivityAuthorCreated,
			EntityType:   activityModel.EntityAuthor,
			EntityID:     e.ID,
			Data:         map[string]interface{}{"name": e.Name},
		})
	}
	for _, e := range result.CreatedEntities[model.EntityPublisher] {
		candidates = append(candidates, activityModel.ActivityData{
			UserID:       *actorID,
			ActivityType: activityModel.ActivityPublisherCreated,
			EntityType:   activityModel.EntityPublisher,
			EntityID:     e.ID,
			Data:         map[string]interface{}{"name": e.Name},
		})
	}
	if len(candidates) == 0 {
		return
	}

	emitted, err := s.activities.Emit(ctx, candidates)
	if err != nil {
		log.Warn().Err(err).Msg("Activity emission failed")
		result.Logf("activities not recorded: %v", err)
		return
	}
	result.Logf("activities: %d inserted, %d duplicates (batch %s)", emitted.Inserted, emitted.Duplicates, emitted.BatchID)
}
