package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	activityModel "bookcatalog-backend/internal/domains/activity/model"
	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/domains/book/repository"
)

// ========================================
// CATALOG STORE
// ========================================

// fakeStore is an in-memory catalog shared by the duplicate and writer fakes
type fakeStore struct {
	mu       sync.Mutex
	books    []*model.Book
	images   map[uuid.UUID]*model.Image
	authors  map[uuid.UUID][]uuid.UUID // book -> authors, in link order
	subjects map[uuid.UUID][]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		images:   make(map[uuid.UUID]*model.Image),
		authors:  make(map[uuid.UUID][]uuid.UUID),
		subjects: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeStore) seed(isbn13 string) {
	b := &model.Book{ID: uuid.New(), Title: "seeded " + isbn13}
	b.ISBN13 = &isbn13
	if alt := model.ISBN13To10(isbn13); alt != "" {
		b.ISBN10 = &alt
	}
	s.books = append(s.books, b)
}

func (s *fakeStore) find(book *model.Book) *model.Book {
	for _, b := range s.books {
		if book.ISBN13 != nil && b.ISBN13 != nil && *b.ISBN13 == *book.ISBN13 {
			return b
		}
		if book.ISBN10 != nil && b.ISBN10 != nil && *b.ISBN10 == *book.ISBN10 {
			return b
		}
	}
	return nil
}

func (s *fakeStore) bookByISBN(isbn string) *model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if (b.ISBN13 != nil && *b.ISBN13 == isbn) || (b.ISBN10 != nil && *b.ISBN10 == isbn) {
			return b
		}
	}
	return nil
}

// fakeDuplicateRepo answers from the store
type fakeDuplicateRepo struct {
	store *fakeStore
	err   error
	calls int
}

func (r *fakeDuplicateRepo) FindExistingISBNs(_ context.Context, isbns []string) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	wanted := make(map[string]bool, len(isbns))
	for _, i := range isbns {
		wanted[i] = true
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []string
	for _, b := range r.store.books {
		if (b.ISBN10 != nil && wanted[*b.ISBN10]) || (b.ISBN13 != nil && wanted[*b.ISBN13]) {
			if b.ISBN10 != nil {
				out = append(out, *b.ISBN10)
			}
			if b.ISBN13 != nil {
				out = append(out, *b.ISBN13)
			}
		}
	}
	return out, nil
}

// fakeWriter buffers a transaction's writes and applies them on success
type fakeWriter struct {
	store *fakeStore

	// failOn makes UpsertBook fail for books with this isbn13
	failOn map[string]error
	// raceOn makes UpsertBook report an existing row for this isbn13
	raceOn map[string]bool

	txCount int
}

type pendingTx struct {
	books    []*model.Book
	images   []*model.Image
	authors  map[uuid.UUID][]uuid.UUID
	subjects map[uuid.UUID][]uuid.UUID
}

type fakeTx struct {
	parent  *fakeWriter
	pending *pendingTx
}

func (w *fakeWriter) WithTx(ctx context.Context, fn func(repository.BookWriter) error) error {
	w.txCount++
	tx := &fakeTx{parent: w, pending: &pendingTx{
		authors:  make(map[uuid.UUID][]uuid.UUID),
		subjects: make(map[uuid.UUID][]uuid.UUID),
	}}
	if err := fn(tx); err != nil {
		return err
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.books = append(w.store.books, tx.pending.books...)
	for _, img := range tx.pending.images {
		w.store.images[img.ID] = img
	}
	for k, v := range tx.pending.authors {
		w.store.authors[k] = append(w.store.authors[k], v...)
	}
	for k, v := range tx.pending.subjects {
		w.store.subjects[k] = append(w.store.subjects[k], v...)
	}
	return nil
}

func (w *fakeWriter) UpsertBook(ctx context.Context, book *model.Book) (*model.Book, bool, error) {
	return nil, false, errors.New("use WithTx")
}
func (w *fakeWriter) LinkAuthor(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("use WithTx")
}
func (w *fakeWriter) LinkSubject(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("use WithTx")
}
func (w *fakeWriter) CreateImage(context.Context, *model.Image) error {
	return errors.New("use WithTx")
}

func (t *fakeTx) WithTx(ctx context.Context, fn func(repository.BookWriter) error) error {
	return fn(t)
}

func (t *fakeTx) UpsertBook(_ context.Context, book *model.Book) (*model.Book, bool, error) {
	key := book.NaturalKey()
	if err := t.parent.failOn[key]; err != nil {
		return nil, false, err
	}
	if t.parent.raceOn[key] {
		return book, false, nil
	}

	t.parent.store.mu.Lock()
	existing := t.parent.store.find(book)
	t.parent.store.mu.Unlock()
	if existing != nil {
		return existing, false, nil
	}

	saved := *book
	saved.ID = uuid.New()
	saved.CreatedAt = time.Now()
	t.pending.books = append(t.pending.books, &saved)
	return &saved, true, nil
}

func (t *fakeTx) LinkAuthor(_ context.Context, bookID, authorID uuid.UUID) error {
	t.pending.authors[bookID] = append(t.pending.authors[bookID], authorID)
	return nil
}

func (t *fakeTx) LinkSubject(_ context.Context, bookID, subjectID uuid.UUID) error {
	t.pending.subjects[bookID] = append(t.pending.subjects[bookID], subjectID)
	return nil
}

func (t *fakeTx) CreateImage(_ context.Context, img *model.Image) error {
	img.ID = uuid.New()
	t.pending.images = append(t.pending.images, img)
	return nil
}

// ========================================
// ENTITIES
// ========================================

type fakeEntityRepo struct {
	rows map[model.EntityKind]map[string]model.Entity

	findCalls   map[model.EntityKind]int
	insertCalls map[model.EntityKind][][]string

	// racers are inserted by "another writer" during InsertNames and not returned
	racers map[string]bool
	failOn map[model.EntityKind]error
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{
		rows:        make(map[model.EntityKind]map[string]model.Entity),
		findCalls:   make(map[model.EntityKind]int),
		insertCalls: make(map[model.EntityKind][][]string),
		racers:      make(map[string]bool),
		failOn:      make(map[model.EntityKind]error),
	}
}

func (r *fakeEntityRepo) seed(kind model.EntityKind, name string) uuid.UUID {
	if r.rows[kind] == nil {
		r.rows[kind] = make(map[string]model.Entity)
	}
	e := model.Entity{ID: uuid.New(), Name: name}
	r.rows[kind][name] = e
	return e.ID
}

func (r *fakeEntityRepo) count(kind model.EntityKind) int {
	return len(r.rows[kind])
}

func (r *fakeEntityRepo) FindByNames(_ context.Context, kind model.EntityKind, names []string) ([]model.Entity, error) {
	r.findCalls[kind]++
	if err := r.failOn[kind]; err != nil {
		return nil, err
	}
	var out []model.Entity
	for _, n := range names {
		if e, ok := r.rows[kind][n]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEntityRepo) InsertNames(_ context.Context, kind model.EntityKind, names []string) ([]model.Entity, error) {
	r.insertCalls[kind] = append(r.insertCalls[kind], append([]string(nil), names...))
	var out []model.Entity
	for _, n := range names {
		if _, ok := r.rows[kind][n]; ok {
			continue
		}
		id := r.seed(kind, n)
		if r.racers[n] {
			continue
		}
		out = append(out, model.Entity{ID: id, Name: n})
	}
	return out, nil
}

// ========================================
// PROVIDER, MEDIA, JOBS, ACTIVITIES
// ========================================

type fakeProvider struct {
	records    map[string]*model.RawRecord
	bulkCalls  [][]string
	discovered []string
	discErr    error
	search     []string

	// single holds records only the single-book lookup returns, as when a bulk chunk fails
	single     map[string]*model.RawRecord
	oneCalls   []string
	oneRetries int
	oneDelay   time.Duration
}

func (p *fakeProvider) FetchBulk(_ context.Context, isbns []string) []*model.RawRecord {
	p.bulkCalls = append(p.bulkCalls, append([]string(nil), isbns...))
	out := make([]*model.RawRecord, len(isbns))
	for i, isbn := range isbns {
		if r, ok := p.records[isbn]; ok {
			copied := *r
			out[i] = &copied
		}
	}
	return out
}

func (p *fakeProvider) FetchOne(_ context.Context, isbn string, maxRetries int, initialDelay time.Duration) *model.RawRecord {
	p.oneCalls = append(p.oneCalls, isbn)
	p.oneRetries, p.oneDelay = maxRetries, initialDelay
	if r, ok := p.single[isbn]; ok {
		copied := *r
		return &copied
	}
	return nil
}

func (p *fakeProvider) DiscoverISBNs(_ context.Context, _ model.EntityKind, _ string, limit int) ([]string, error) {
	if p.discErr != nil {
		return nil, p.discErr
	}
	if limit > 0 && len(p.discovered) > limit {
		return p.discovered[:limit], nil
	}
	return p.discovered, nil
}

func (p *fakeProvider) SearchNames(context.Context, model.EntityKind, string, int, int) ([]string, error) {
	return p.search, nil
}

type fakeUploader struct {
	uploadErr error
	deleteErr error
	uploads   []string
	deletes   []string
}

func (u *fakeUploader) Upload(_ context.Context, src model.MediaSource, folder string) (*model.UploadedMedia, error) {
	if u.uploadErr != nil {
		return nil, u.uploadErr
	}
	key := fmt.Sprintf("%s/%d.jpg", folder, len(u.uploads))
	u.uploads = append(u.uploads, key)
	return &model.UploadedMedia{URL: "http://minio.test/bucket/" + key, ProviderID: key, Folder: folder}, nil
}

func (u *fakeUploader) Delete(_ context.Context, providerID string) error {
	u.deletes = append(u.deletes, providerID)
	return u.deleteErr
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

type fakeJobRepo struct {
	jobs      map[uuid.UUID]*model.ImportJob
	statuses  []model.JobStatus
	retryable []*model.ImportJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*model.ImportJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, job *model.ImportJob) error {
	r.jobs[job.ID] = job
	r.statuses = append(r.statuses, job.Status)
	return nil
}

func (r *fakeJobRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	job, ok := r.jobs[id]
	if !ok {
		return model.ErrImportJobNotFound
	}
	job.Status = model.JobStatusProcessing
	r.statuses = append(r.statuses, job.Status)
	return nil
}

func (r *fakeJobRepo) Complete(_ context.Context, id uuid.UUID, result *model.ImportResult) error {
	job, ok := r.jobs[id]
	if !ok {
		return model.ErrImportJobNotFound
	}
	job.Status = result.Status()
	job.Added, job.Duplicates, job.Errors = result.Added, result.Duplicates, result.Errors
	job.ErrorDetails = result.ErrorDetails
	job.FailedISBNs = result.FailedISBNs
	r.statuses = append(r.statuses, job.Status)
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id uuid.UUID) (*model.ImportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrImportJobNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) ListRetryable(_ context.Context, limit int) ([]*model.ImportJob, error) {
	if len(r.retryable) > limit {
		return r.retryable[:limit], nil
	}
	return r.retryable, nil
}

func (r *fakeJobRepo) MarkRetried(_ context.Context, id uuid.UUID) error {
	for _, j := range r.retryable {
		if j.ID == id {
			j.Retried = true
		}
	}
	return nil
}

type fakeEmitter struct {
	calls [][]activityModel.ActivityData
}

func (e *fakeEmitter) Emit(_ context.Context, c []activityModel.ActivityData) (*activityModel.EmitResult, error) {
	e.calls = append(e.calls, c)
	return &activityModel.EmitResult{Inserted: len(c), BatchID: "batch_test"}, nil
}
