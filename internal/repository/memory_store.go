package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/lumira-io/lumira-support/internal/models"
)

// MemoryStore is an in-memory Store for tests. It is not transactional;
// WithinTx simply runs fn against the same state.
type MemoryStore struct {
	mu sync.Mutex

	nextID int64

	TicketsByID   map[int64]*models.Ticket
	ticketsByNum  map[string]int64
	CommentRows   []*models.Comment
	AttachRows    []*models.Attachment
	UsersByID     map[int64]*models.User
	usersByEmail  map[string]int64
	staffRoles    map[int64]bool
	categories    map[string]int64
	priorities    map[string]int64
	priorityNames map[int64]string
	statuses      map[string]int64
	departments   map[string]int64
	Policies      []*models.SLAPolicy
	BreachRows    []*models.SLABreach
	TrackingRows  []*models.EmailTrackingRecord

	// TakenTicketNumbers makes Create fail with a unique-violation error
	// for the listed numbers, exercising the regenerate-and-retry path.
	TakenTicketNumbers map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		TicketsByID:        make(map[int64]*models.Ticket),
		ticketsByNum:       make(map[string]int64),
		UsersByID:          make(map[int64]*models.User),
		usersByEmail:       make(map[string]int64),
		staffRoles:         make(map[int64]bool),
		categories:         make(map[string]int64),
		priorities:         make(map[string]int64),
		priorityNames:      make(map[int64]string),
		statuses:           make(map[string]int64),
		departments:        make(map[string]int64),
		TakenTicketNumbers: make(map[string]bool),
	}
}

// SeedDefaults loads the reference data a fresh install ships with.
func (s *MemoryStore) SeedDefaults() *MemoryStore {
	for _, c := range []string{"Technical Issue", "Billing", "Product Question", "Order Issue", "Password/Login"} {
		s.AddCategory(c)
	}
	for _, p := range []string{"Low", "Medium", "High", "Critical"} {
		s.AddPriority(p)
	}
	for _, st := range []string{"Open", "In Progress", "Resolved", "Closed"} {
		s.AddStatus(st)
	}
	s.AddDepartment("Support")
	return s
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.categories[name] = id
	return id
}

func (s *MemoryStore) AddPriority(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.priorities[name] = id
	s.priorityNames[id] = name
	return id
}

func (s *MemoryStore) AddStatus(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.statuses[name] = id
	return id
}

func (s *MemoryStore) AddDepartment(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.departments[name] = id
	return id
}

// AddUser registers an account; staff marks its role as Admin/Support Agent.
func (s *MemoryStore) AddUser(email, fullName string, staff bool) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	roleID := int64(3)
	if staff {
		roleID = 2
	}
	s.staffRoles[roleID] = staff
	u := &models.User{
		ID:        s.id(),
		Email:     email,
		FullName:  fullName,
		RoleID:    roleID,
		CreatedAt: time.Now(),
	}
	s.UsersByID[u.ID] = u
	s.usersByEmail[strings.ToLower(email)] = u.ID
	return u
}

func (s *MemoryStore) AddPolicy(p models.SLAPolicy) *models.SLAPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	cp := p
	s.Policies = append(s.Policies, &cp)
	return &cp
}

func (s *MemoryStore) AddTicket(t models.Ticket) *models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	cp := t
	s.TicketsByID[cp.ID] = &cp
	s.ticketsByNum[cp.TicketNumber] = cp.ID
	return &cp
}

// CommentsOn returns the comments recorded for one ticket, in insert order.
func (s *MemoryStore) CommentsOn(ticketID int64) []*models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Comment
	for _, c := range s.CommentRows {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out
}

func (s *MemoryStore) Tickets() TicketStore         { return memTickets{s} }
func (s *MemoryStore) Comments() CommentStore       { return memComments{s} }
func (s *MemoryStore) Attachments() AttachmentStore { return memAttachments{s} }
func (s *MemoryStore) Users() UserStore             { return memUsers{s} }
func (s *MemoryStore) Lookups() LookupStore         { return memLookups{s} }
func (s *MemoryStore) SLA() SLAStore                { return memSLA{s} }
func (s *MemoryStore) Tracking() TrackingStore      { return memTracking{s} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

type memTickets struct{ s *MemoryStore }

func (m memTickets) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.ticketsByNum[number]
	if !ok {
		return nil, nil
	}
	cp := *m.s.TicketsByID[id]
	return &cp, nil
}

func (m memTickets) Create(ctx context.Context, t *models.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.TakenTicketNumbers[t.TicketNumber] {
		return fmt.Errorf("ticket number %s taken: %w", t.TicketNumber, &pq.Error{Code: "23505"})
	}
	if _, exists := m.s.ticketsByNum[t.TicketNumber]; exists {
		return fmt.Errorf("ticket number %s taken: %w", t.TicketNumber, &pq.Error{Code: "23505"})
	}
	t.ID = m.s.id()
	cp := *t
	m.s.TicketsByID[cp.ID] = &cp
	m.s.ticketsByNum[cp.TicketNumber] = cp.ID
	return nil
}

func (m memTickets) mutate(id int64, fn func(*models.Ticket)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.TicketsByID[id]
	if !ok {
		return fmt.Errorf("no ticket %d", id)
	}
	fn(t)
	return nil
}

func (m memTickets) Touch(ctx context.Context, id int64, now time.Time) error {
	return m.mutate(id, func(t *models.Ticket) { t.UpdatedAt = now })
}

func (m memTickets) UpdateSLAStatus(ctx context.Context, id int64, status string) error {
	return m.mutate(id, func(t *models.Ticket) { t.SLAStatus = status })
}

func (m memTickets) Assign(ctx context.Context, id, userID int64) error {
	return m.mutate(id, func(t *models.Ticket) { t.AssignedToID = &userID })
}

func (m memTickets) ApplySLA(ctx context.Context, id, policyID int64, firstResponseDue, resolutionDue time.Time) error {
	return m.mutate(id, func(t *models.Ticket) {
		t.SLAPolicyID = &policyID
		t.FirstResponseDue = &firstResponseDue
		t.ResolutionDue = &resolutionDue
		t.SLAStatus = models.SLAOnTrack
	})
}

func (m memTickets) MarkFirstResponseWarned(ctx context.Context, id int64, now time.Time) error {
	return m.mutate(id, func(t *models.Ticket) { t.FirstResponseWarnedAt = &now })
}

func (m memTickets) MarkResolutionWarned(ctx context.Context, id int64, now time.Time) error {
	return m.mutate(id, func(t *models.Ticket) { t.ResolutionWarnedAt = &now })
}

func (m memTickets) OpenWithSLA(ctx context.Context) ([]models.MonitoredTicket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	terminal := map[int64]bool{}
	for _, name := range []string{"Closed", "Resolved"} {
		if id, ok := m.s.statuses[name]; ok {
			terminal[id] = true
		}
	}
	var out []models.MonitoredTicket
	for _, t := range m.s.TicketsByID {
		if t.SLAPolicyID == nil || terminal[t.StatusID] {
			continue
		}
		var policy *models.SLAPolicy
		for _, p := range m.s.Policies {
			if p.ID == *t.SLAPolicyID {
				policy = p
				break
			}
		}
		if policy == nil {
			continue
		}
		mt := models.MonitoredTicket{
			ID:                    t.ID,
			TicketNumber:          t.TicketNumber,
			Subject:               t.Subject,
			SLAPolicyID:           policy.ID,
			SLAStatus:             t.SLAStatus,
			AssignedToID:          t.AssignedToID,
			FirstResponseDue:      t.FirstResponseDue,
			ResolutionDue:         t.ResolutionDue,
			FirstRespondedAt:      t.FirstRespondedAt,
			ResolvedAt:            t.ResolvedAt,
			FirstResponseWarnedAt: t.FirstResponseWarnedAt,
			ResolutionWarnedAt:    t.ResolutionWarnedAt,
			FirstResponseHours:    policy.FirstResponseHours,
			ResolutionHours:       policy.ResolutionHours,
			EscalationUserID:      policy.EscalationUserID,
			SLAName:               policy.Name,
		}
		if req, ok := m.s.UsersByID[t.RequesterID]; ok {
			mt.RequesterEmail = req.Email
			mt.RequesterName = req.FullName
		}
		if t.AssignedToID != nil {
			if asg, ok := m.s.UsersByID[*t.AssignedToID]; ok {
				email, name := asg.Email, asg.FullName
				mt.AssignedEmail = &email
				mt.AssignedName = &name
			}
		}
		out = append(out, mt)
	}
	return out, nil
}

type memComments struct{ s *MemoryStore }

func (m memComments) Create(ctx context.Context, c *models.Comment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c.ID = m.s.id()
	cp := *c
	m.s.CommentRows = append(m.s.CommentRows, &cp)
	return nil
}

type memAttachments struct{ s *MemoryStore }

func (m memAttachments) Create(ctx context.Context, a *models.Attachment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a.ID = m.s.id()
	cp := *a
	m.s.AttachRows = append(m.s.AttachRows, &cp)
	return nil
}

type memUsers struct{ s *MemoryStore }

func (m memUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.UsersByID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *m.s.UsersByID[id]
	return &cp, nil
}

func (m memUsers) CreateCustomer(ctx context.Context, email, fullName string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u := &models.User{
		ID:        m.s.id(),
		Email:     email,
		FullName:  fullName,
		RoleID:    3,
		CreatedAt: time.Now(),
	}
	m.s.UsersByID[u.ID] = u
	m.s.usersByEmail[strings.ToLower(email)] = u.ID
	cp := *u
	return &cp, nil
}

func (m memUsers) StaffIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := m.s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return 0, false, nil
	}
	u := m.s.UsersByID[id]
	if !m.s.staffRoles[u.RoleID] {
		return 0, false, nil
	}
	return id, true, nil
}

type memLookups struct{ s *MemoryStore }

func (m memLookups) lookup(table map[string]int64, name string) (int64, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	id, ok := table[name]
	return id, ok, nil
}

func (m memLookups) CategoryIDByName(ctx context.Context, name string) (int64, bool, error) {
	return m.lookup(m.s.categories, name)
}

func (m memLookups) DefaultCategoryID(ctx context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var min int64
	for _, id := range m.s.categories {
		if min == 0 || id < min {
			min = id
		}
	}
	if min == 0 {
		return 0, fmt.Errorf("no categories seeded")
	}
	return min, nil
}

func (m memLookups) PriorityIDByName(ctx context.Context, name string) (int64, bool, error) {
	return m.lookup(m.s.priorities, name)
}

func (m memLookups) PriorityNameByID(ctx context.Context, id int64) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	name, ok := m.s.priorityNames[id]
	if !ok {
		return "", fmt.Errorf("no priority %d", id)
	}
	return name, nil
}

func (m memLookups) StatusIDByName(ctx context.Context, name string) (int64, bool, error) {
	return m.lookup(m.s.statuses, name)
}

func (m memLookups) DepartmentIDByName(ctx context.Context, name string) (int64, bool, error) {
	return m.lookup(m.s.departments, name)
}

type memSLA struct{ s *MemoryStore }

func (m memSLA) PolicyForPriority(ctx context.Context, priorityID int64) (*models.SLAPolicy, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rank := func(tier string) int {
		switch tier {
		case "vip":
			return 1
		case "standard":
			return 2
		default:
			return 3
		}
	}
	var best *models.SLAPolicy
	for _, p := range m.s.Policies {
		if p.PriorityID != priorityID || !p.IsActive {
			continue
		}
		if best == nil || rank(p.CustomerTier) < rank(best.CustomerTier) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m memSLA) HasBreach(ctx context.Context, ticketID int64, breachType string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, b := range m.s.BreachRows {
		if b.TicketID == ticketID && b.BreachType == breachType {
			return true, nil
		}
	}
	return false, nil
}

func (m memSLA) RecordBreach(ctx context.Context, b *models.SLABreach) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b.ID = m.s.id()
	cp := *b
	m.s.BreachRows = append(m.s.BreachRows, &cp)
	return nil
}

type memTracking struct{ s *MemoryStore }

func (m memTracking) Record(ctx context.Context, rec *models.EmailTrackingRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rec.ID = m.s.id()
	cp := *rec
	m.s.TrackingRows = append(m.s.TrackingRows, &cp)
	return nil
}
