package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
	"github.com/vibast-solutions/ms-go-course-purchases/app/provider"
	"github.com/vibast-solutions/ms-go-course-purchases/app/repository"
)

type memStore struct {
	mu sync.Mutex

	courses        map[uint64]*entity.Course
	purchases      map[uint64]*entity.CoursePurchase
	userCourses    map[string]map[uint64]time.Time
	courseStudents map[uint64]map[string]time.Time
	progress       map[string]*entity.CourseProgress
	events         []*entity.PurchaseEvent
	webhooks       []*entity.WebhookEvent

	nextPurchaseID uint64
	nextProgressID uint64
	writes         int
}

func newMemStore() *memStore {
	return &memStore{
		courses:        map[uint64]*entity.Course{},
		purchases:      map[uint64]*entity.CoursePurchase{},
		userCourses:    map[string]map[uint64]time.Time{},
		courseStudents: map[uint64]map[string]time.Time{},
		progress:       map[string]*entity.CourseProgress{},
		nextPurchaseID: 1,
		nextProgressID: 1,
	}
}

func (m *memStore) addCourse(course *entity.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copyItem := *course
	m.courses[course.ID] = &copyItem
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memStore) purchase(id uint64) *entity.CoursePurchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.purchases[id]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (m *memStore) progressCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.progress)
}

func (m *memStore) eventTypes(purchaseID uint64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, e := range m.events {
		if e.PurchaseID == purchaseID {
			out = append(out, e.EventType)
		}
	}
	return out
}

func progressKey(userID string, courseID uint64) string {
	return fmt.Sprintf("%s|%d", userID, courseID)
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type memCourseRepo struct{ store *memStore }

func (r *memCourseRepo) FindByID(_ context.Context, id uint64) (*entity.Course, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.courses[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *memCourseRepo) ListPurchasedByUser(_ context.Context, userID string) ([]*entity.Course, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	latest := map[uint64]time.Time{}
	for _, p := range r.store.purchases {
		if p.UserID != userID || p.Status != entity.PurchaseStatusCompleted || p.CompletedAt == nil {
			continue
		}
		if p.CompletedAt.After(latest[p.CourseID]) {
			latest[p.CourseID] = *p.CompletedAt
		}
	}

	out := make([]*entity.Course, 0, len(latest))
	for courseID := range latest {
		if course, ok := r.store.courses[courseID]; ok {
			copyItem := *course
			out = append(out, &copyItem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return latest[out[i].ID].After(latest[out[j].ID])
	})
	return out, nil
}

type memPurchaseRepo struct {
	store     *memStore
	createErr error
}

func (r *memPurchaseRepo) Create(_ context.Context, purchase *entity.CoursePurchase) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	id := r.store.nextPurchaseID
	r.store.nextPurchaseID++
	copyItem := *purchase
	copyItem.ID = id
	r.store.purchases[id] = &copyItem
	purchase.ID = id
	r.store.writes++
	return nil
}

func (r *memPurchaseRepo) AttachCheckoutSession(_ context.Context, id uint64, sessionID, checkoutURL string, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.purchases[id]
	if !ok || item.ProviderSessionID != nil {
		return repository.ErrPurchaseNotFound
	}
	for _, other := range r.store.purchases {
		if other.ProviderSessionID != nil && *other.ProviderSessionID == sessionID {
			return repository.ErrPurchaseAlreadyExists
		}
	}
	item.ProviderSessionID = &sessionID
	item.CheckoutURL = &checkoutURL
	item.UpdatedAt = now
	r.store.writes++
	return nil
}

func (r *memPurchaseRepo) MarkCompleted(_ context.Context, id uint64, amount int64, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.purchases[id]
	if !ok {
		return nil
	}
	item.Status = entity.PurchaseStatusCompleted
	item.Amount = amount
	if item.CompletedAt == nil {
		completedAt := now
		item.CompletedAt = &completedAt
	}
	item.UpdatedAt = now
	r.store.writes++
	return nil
}

func (r *memPurchaseRepo) FindByID(_ context.Context, id uint64) (*entity.CoursePurchase, error) {
	return r.store.purchase(id), nil
}

func (r *memPurchaseRepo) FindLatestByUserCourse(_ context.Context, userID string, courseID uint64, status int32) (*entity.CoursePurchase, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var latest *entity.CoursePurchase
	for _, item := range r.store.purchases {
		if item.UserID != userID || item.CourseID != courseID || item.Status != status {
			continue
		}
		if latest == nil || item.CreatedAt.After(latest.CreatedAt) || (item.CreatedAt.Equal(latest.CreatedAt) && item.ID > latest.ID) {
			latest = item
		}
	}
	if latest == nil {
		return nil, nil
	}
	copyItem := *latest
	return &copyItem, nil
}

func (r *memPurchaseRepo) ExistsForUserCourse(_ context.Context, userID string, courseID uint64, completedOnly bool) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, item := range r.store.purchases {
		if item.UserID != userID || item.CourseID != courseID {
			continue
		}
		if completedOnly && item.Status != entity.PurchaseStatusCompleted {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r *memPurchaseRepo) ListStalePending(_ context.Context, createdAfter, updatedBefore time.Time, limit int32) ([]*entity.CoursePurchase, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*entity.CoursePurchase{}
	for _, item := range r.store.purchases {
		if item.Status != entity.PurchaseStatusPending || item.ProviderSessionID == nil {
			continue
		}
		if item.CreatedAt.Before(createdAfter) || item.UpdatedAt.After(updatedBefore) {
			continue
		}
		copyItem := *item
		out = append(out, &copyItem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memEnrollmentRepo struct {
	store         *memStore
	addStudentErr error
}

func (r *memEnrollmentRepo) AddUserCourse(_ context.Context, userID string, courseID uint64, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	set, ok := r.store.userCourses[userID]
	if !ok {
		set = map[uint64]time.Time{}
		r.store.userCourses[userID] = set
	}
	if _, exists := set[courseID]; !exists {
		set[courseID] = now
	}
	r.store.writes++
	return nil
}

func (r *memEnrollmentRepo) AddCourseStudent(_ context.Context, courseID uint64, userID string, now time.Time) error {
	if r.addStudentErr != nil {
		return r.addStudentErr
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	set, ok := r.store.courseStudents[courseID]
	if !ok {
		set = map[string]time.Time{}
		r.store.courseStudents[courseID] = set
	}
	if _, exists := set[userID]; !exists {
		set[userID] = now
	}
	r.store.writes++
	return nil
}

func (r *memEnrollmentRepo) ListCourseIDsForUser(_ context.Context, userID string) ([]uint64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []uint64{}
	for id := range r.store.userCourses[userID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memEnrollmentRepo) ListStudentIDsForCourse(_ context.Context, courseID uint64) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []string{}
	for id := range r.store.courseStudents[courseID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

type memProgressRepo struct{ store *memStore }

func (r *memProgressRepo) Ensure(_ context.Context, progress *entity.CourseProgress) (*entity.CourseProgress, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := progressKey(progress.UserID, progress.CourseID)
	item, ok := r.store.progress[key]
	if !ok {
		copyItem := *progress
		copyItem.ID = r.store.nextProgressID
		r.store.nextProgressID++
		copyItem.LectureProgress = append([]entity.LectureProgress{}, progress.LectureProgress...)
		r.store.progress[key] = &copyItem
		item = &copyItem
	}
	r.store.writes++
	out := *item
	return &out, nil
}

// gatedProgressRepo holds Ensure until release is closed and fails with the
// call's context error if that context ends first.
type gatedProgressRepo struct {
	next    progressRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedProgressRepo(next progressRepository) *gatedProgressRepo {
	return &gatedProgressRepo{
		next:    next,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *gatedProgressRepo) Ensure(ctx context.Context, progress *entity.CourseProgress) (*entity.CourseProgress, error) {
	r.once.Do(func() { close(r.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.release:
	}
	return r.next.Ensure(ctx, progress)
}

type memEventRepo struct{ store *memStore }

func (r *memEventRepo) Create(_ context.Context, event *entity.PurchaseEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copyItem := *event
	r.store.events = append(r.store.events, &copyItem)
	r.store.writes++
	return nil
}

type memWebhookRepo struct{ store *memStore }

func (r *memWebhookRepo) Create(_ context.Context, event *entity.WebhookEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copyItem := *event
	r.store.webhooks = append(r.store.webhooks, &copyItem)
	r.store.writes++
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]*provider.CheckoutSession
	inputs   []*provider.CheckoutInput
	created  int

	createErr error
	getErr    error
	getCalls  int
	verifier  *provider.StripeProvider
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sessions: map[string]*provider.CheckoutSession{},
		verifier: provider.NewStripeProvider(provider.StripeConfig{WebhookSecret: testWebhookSecret}),
	}
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, input *provider.CheckoutInput) (*provider.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created++
	copyInput := *input
	p.inputs = append(p.inputs, &copyInput)
	id := fmt.Sprintf("cs_test_%d", p.created)
	session := &provider.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.test/" + id,
		Status:        "open",
		PaymentStatus: provider.PaymentStatusUnpaid,
		AmountTotal:   input.Amount,
		Currency:      input.Currency,
		Metadata: map[string]string{
			"purchase_id": uintString(input.PurchaseID),
			"course_id":   uintString(input.CourseID),
			"user_id":     input.UserID,
		},
	}
	p.sessions[id] = session
	copySession := *session
	return &copySession, nil
}

func (p *fakeProvider) GetCheckoutSession(_ context.Context, sessionID string) (*provider.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	session, ok := p.sessions[sessionID]
	if !ok {
		return nil, provider.ErrSessionNotFound
	}
	copySession := *session
	return &copySession, nil
}

func (p *fakeProvider) VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*provider.WebhookEvent, error) {
	return p.verifier.VerifyAndParseWebhook(ctx, payload, signature)
}

func (p *fakeProvider) markPaid(sessionID string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	session.Status = "complete"
	session.PaymentStatus = provider.PaymentStatusPaid
	session.AmountTotal = amount
}

var errStoreDown = errors.New("store unavailable")
