// internal/repository/memory/store.go

// Package memory is an in-process store with the same cascade and uniqueness
// rules as the Postgres schema. It backs STORE=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository"
)

type logKey struct {
	campaignID int64
	userID     int64
}

type Store struct {
	mu sync.Mutex
	// now is used for audit timestamps.
	now func() time.Time

	nextID    int64
	templates map[int64]model.Template
	campaigns map[int64]model.Campaign
	logs      map[int64]model.DeliveryLog
	logIndex  map[logKey]int64
	users     map[int64]model.User
}

func New() *Store {
	return &Store{
		now:       time.Now,
		templates: map[int64]model.Template{},
		campaigns: map[int64]model.Campaign{},
		logs:      map[int64]model.DeliveryLog{},
		logIndex:  map[logKey]int64{},
		users:     map[int64]model.User{},
	}
}

// SetClock replaces the source of audit timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ====================== Users ======================

// AddUser stores u, assigning an ID and unsubscribe token when missing.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		u.ID = s.id()
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	if u.UnsubscribeToken == "" {
		u.UnsubscribeToken = uuid.NewString()
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = s.now()
	}
	s.users[u.ID] = u
	return u
}

// DeleteUser removes a user with their delivery logs and recipient entries,
// and clears their authorship like ON DELETE SET NULL.
func (s *Store) DeleteUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	for logID, l := range s.logs {
		if l.UserID == id {
			delete(s.logs, logID)
			delete(s.logIndex, logKey{l.CampaignID, l.UserID})
		}
	}
	for cid, c := range s.campaigns {
		if c.CreatedBy != nil && *c.CreatedBy == id {
			c.CreatedBy = nil
		}
		if c.Audience.Kind == model.AudienceCustom {
			kept := c.Audience.UserIDs[:0:0]
			for _, uid := range c.Audience.UserIDs {
				if uid != id {
					kept = append(kept, uid)
				}
			}
			c.Audience.UserIDs = kept
		}
		s.campaigns[cid] = c
	}
	for tid, t := range s.templates {
		if t.CreatedBy != nil && *t.CreatedBy == id {
			t.CreatedBy = nil
			s.templates[tid] = t
		}
	}
}

func (s *Store) sortedUsers(keep func(model.User) bool) []model.User {
	users := []model.User{}
	for _, u := range s.users {
		if keep(u) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *Store) AllUsers(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers(func(u model.User) bool { return u.IsActive }), nil
}

func (s *Store) Segment(ctx context.Context, name string, now time.Time) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case model.SegmentOptedIn:
		return s.sortedUsers(func(u model.User) bool { return u.IsActive && u.EmailConsent }), nil
	case model.SegmentStaff:
		return s.sortedUsers(func(u model.User) bool { return u.IsActive && u.IsStaff }), nil
	case model.SegmentRecent:
		since := now.Add(-model.RecentWindow)
		return s.sortedUsers(func(u model.User) bool { return u.IsActive && !u.DateJoined.Before(since) }), nil
	}
	return nil, appErrors.NewValidation("segment", "is not a known segment: "+name)
}

func (s *Store) UsersByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, appErrors.NewUserNotFound(id)
	}
	return &u, nil
}

func (s *Store) GetUserByUnsubscribeToken(ctx context.Context, token string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if token != "" && u.UnsubscribeToken == token {
			return &u, nil
		}
	}
	return nil, &appErrors.NotFoundError{Resource: "user"}
}

func (s *Store) SetEmailConsent(ctx context.Context, id int64, consent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return appErrors.NewUserNotFound(id)
	}
	u.EmailConsent = consent
	s.users[id] = u
	return nil
}

func (s *Store) EnsureUnsubscribeTokens(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued := 0
	for id, u := range s.users {
		if u.UnsubscribeToken == "" {
			u.UnsubscribeToken = uuid.NewString()
			s.users[id] = u
			issued++
		}
	}
	return issued, nil
}

// ====================== Templates ======================

func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.id()
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[t.ID]
	if !ok {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	t.CreatedAt = existing.CreatedAt
	t.CreatedBy = existing.CreatedBy
	t.UpdatedAt = s.now()
	s.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	t = cloneTemplate(t)
	return &t, nil
}

func (s *Store) GetTemplateByName(ctx context.Context, name string) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *model.Template
	for _, t := range s.templates {
		if t.Name == name && (found == nil || t.ID < found.ID) {
			t := cloneTemplate(t)
			found = &t
		}
	}
	if found == nil {
		return nil, &appErrors.NotFoundError{Resource: "template"}
	}
	return found, nil
}

func (s *Store) ListTemplates(ctx context.Context, category model.TemplateCategory, activeOnly bool) ([]model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Template{}
	for _, t := range s.templates {
		if category != "" && t.Category != category {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[id]; !ok {
		return appErrors.NewTemplateNotFound(id)
	}
	delete(s.templates, id)
	for cid, c := range s.campaigns {
		if c.TemplateID == id {
			s.deleteCampaignLocked(cid)
		}
	}
	return nil
}

func cloneTemplate(t model.Template) model.Template {
	t.MergeFields = append([]string{}, t.MergeFields...)
	return t
}

// ====================== Campaigns ======================

func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReferencesLocked(c); err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.ID = s.id()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.campaigns[c.ID] = cloneCampaign(*c)
	return nil
}

func (s *Store) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	if existing.Status != model.CampaignDraft {
		return &appErrors.InvalidTransitionError{CampaignID: c.ID, From: string(existing.Status), To: string(model.CampaignDraft)}
	}
	if err := s.checkReferencesLocked(c); err != nil {
		return err
	}

	existing.Name = c.Name
	existing.TemplateID = c.TemplateID
	existing.Audience = c.Audience
	existing.Mode = c.Mode
	existing.UpdatedAt = s.now()
	s.campaigns[c.ID] = cloneCampaign(existing)
	*c = cloneCampaign(existing)
	return nil
}

// checkReferencesLocked mirrors the foreign keys on email_campaigns and
// email_campaign_recipients.
func (s *Store) checkReferencesLocked(c *model.Campaign) error {
	if _, ok := s.templates[c.TemplateID]; !ok {
		return appErrors.NewTemplateNotFound(c.TemplateID)
	}
	if c.CreatedBy != nil {
		if _, ok := s.users[*c.CreatedBy]; !ok {
			return appErrors.NewUserNotFound(*c.CreatedBy)
		}
	}
	if c.Audience.Kind == model.AudienceCustom {
		for _, uid := range c.Audience.UserIDs {
			if _, ok := s.users[uid]; !ok {
				return appErrors.NewUserNotFound(uid)
			}
		}
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	c = cloneCampaign(c)
	return &c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := []model.Campaign{}
	for _, c := range s.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		filtered = append(filtered, cloneCampaign(c))
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })

	total := len(filtered)
	if offset > total {
		return []model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	s.deleteCampaignLocked(id)
	return nil
}

func (s *Store) deleteCampaignLocked(id int64) {
	delete(s.campaigns, id)
	for logID, l := range s.logs {
		if l.CampaignID == id {
			delete(s.logs, logID)
			delete(s.logIndex, logKey{l.CampaignID, l.UserID})
		}
	}
}

// transition applies fn when the campaign's status is one of from.
func (s *Store) transition(id int64, to model.CampaignStatus, fn func(*model.Campaign), from ...model.CampaignStatus) error {
	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	for _, st := range from {
		if c.Status == st {
			c.Status = to
			c.UpdatedAt = s.now()
			if fn != nil {
				fn(&c)
			}
			s.campaigns[id] = c
			return nil
		}
	}
	return &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: string(to)}
}

func (s *Store) Schedule(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(id, model.CampaignScheduled, func(c *model.Campaign) {
		c.ScheduledSend = &at
	}, model.CampaignDraft, model.CampaignScheduled)
}

func (s *Store) Unschedule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(id, model.CampaignDraft, func(c *model.Campaign) {
		c.ScheduledSend = nil
	}, model.CampaignScheduled)
}

func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transition(id, model.CampaignFailed, func(c *model.Campaign) {
		c.TotalRecipients, c.SentCount, c.FailedCount = 0, 0, 0
	}, model.CampaignDraft, model.CampaignScheduled)
}

func (s *Store) BeginSending(ctx context.Context, id int64, userIDs []int64) ([]model.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if !c.Status.Sendable() {
		return nil, &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: string(model.CampaignSending)}
	}

	// Validate every insert before touching state so a duplicate rolls the
	// whole claim back.
	seen := make(map[int64]bool, len(userIDs))
	for _, uid := range userIDs {
		if _, exists := s.logIndex[logKey{id, uid}]; exists || seen[uid] {
			return nil, &appErrors.DuplicateDeliveryError{CampaignID: id, UserID: uid}
		}
		if _, ok := s.users[uid]; !ok {
			return nil, appErrors.NewUserNotFound(uid)
		}
		seen[uid] = true
	}

	c.Status = model.CampaignSending
	c.TotalRecipients = len(userIDs)
	c.UpdatedAt = s.now()
	s.campaigns[id] = c

	logs := make([]model.DeliveryLog, 0, len(userIDs))
	for _, uid := range userIDs {
		logs = append(logs, s.insertLogLocked(id, uid))
	}
	return logs, nil
}

func (s *Store) counts(campaignID int64) (sent, failed int) {
	for _, l := range s.logs {
		if l.CampaignID != campaignID {
			continue
		}
		switch l.Status {
		case model.DeliverySent:
			sent++
		case model.DeliveryFailed:
			failed++
		}
	}
	return sent, failed
}

func (s *Store) RefreshCounters(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.SentCount, c.FailedCount = s.counts(id)
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return nil
}

func (s *Store) CompleteSending(ctx context.Context, id int64, sentAt time.Time) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.transition(id, model.CampaignSent, func(c *model.Campaign) {
		c.SentCount, c.FailedCount = s.counts(id)
		at := sentAt
		c.SentAt = &at
		c.UpdatedAt = sentAt
	}, model.CampaignSending)
	if err != nil {
		return nil, err
	}
	c := cloneCampaign(s.campaigns[id])
	return &c, nil
}

func (s *Store) ListDue(ctx context.Context, now time.Time, includeDrafts bool) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := []model.Campaign{}
	for _, c := range s.campaigns {
		scheduledDue := c.Status == model.CampaignScheduled && c.ScheduledSend != nil && !c.ScheduledSend.After(now)
		if scheduledDue || (includeDrafts && c.Status == model.CampaignDraft) {
			due = append(due, cloneCampaign(c))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *Store) ListStaleSending(ctx context.Context, before time.Time) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := []model.Campaign{}
	for _, c := range s.campaigns {
		if c.Status == model.CampaignSending && !c.UpdatedAt.After(before) {
			stale = append(stale, cloneCampaign(c))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

func (s *Store) ClaimSending(ctx context.Context, id int64, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if c.Status != model.CampaignSending || c.UpdatedAt.After(before) {
		return &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: string(model.CampaignSending)}
	}
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return nil
}

func cloneCampaign(c model.Campaign) model.Campaign {
	if c.Audience.UserIDs != nil {
		c.Audience.UserIDs = append([]int64{}, c.Audience.UserIDs...)
	}
	return c
}

// ====================== Delivery logs ======================

func (s *Store) insertLogLocked(campaignID, userID int64) model.DeliveryLog {
	l := model.DeliveryLog{
		ID:         s.id(),
		CampaignID: campaignID,
		UserID:     userID,
		Status:     model.DeliveryPending,
		CreatedAt:  s.now(),
	}
	s.logs[l.ID] = l
	s.logIndex[logKey{campaignID, userID}] = l.ID
	return l
}

func (s *Store) InsertDeliveryLog(ctx context.Context, campaignID, userID int64) (*model.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaignID]; !ok {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	if _, exists := s.logIndex[logKey{campaignID, userID}]; exists {
		return nil, &appErrors.DuplicateDeliveryError{CampaignID: campaignID, UserID: userID}
	}
	l := s.insertLogLocked(campaignID, userID)
	return &l, nil
}

func (s *Store) finalize(id int64, fn func(*model.DeliveryLog)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[id]
	if !ok || l.Status != model.DeliveryPending {
		return appErrors.ErrDeliveryFinalized
	}
	fn(&l)
	s.logs[id] = l
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, id int64, subject string, sentAt time.Time) error {
	return s.finalize(id, func(l *model.DeliveryLog) {
		l.Status = model.DeliverySent
		l.Subject = subject
		l.ErrorMessage = ""
		at := sentAt
		l.SentAt = &at
	})
}

func (s *Store) MarkDeliveryFailed(ctx context.Context, id int64, subject, errMsg string) error {
	return s.finalize(id, func(l *model.DeliveryLog) {
		l.Status = model.DeliveryFailed
		l.Subject = subject
		l.ErrorMessage = errMsg
	})
}

func (s *Store) ListDeliveryLogs(ctx context.Context, campaignID int64, status model.DeliveryStatus) ([]model.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := []model.DeliveryLog{}
	for _, l := range s.logs {
		if l.CampaignID == campaignID && (status == "" || l.Status == status) {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID < logs[j].ID })
	return logs, nil
}

func (s *Store) CountByStatus(ctx context.Context, campaignID int64) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0}
	for _, l := range s.logs {
		if l.CampaignID == campaignID {
			stats[string(l.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

var (
	_ repository.TemplateRepositoryInterface    = (*Store)(nil)
	_ repository.CampaignRepositoryInterface    = (*Store)(nil)
	_ repository.DeliveryLogRepositoryInterface = (*Store)(nil)
	_ repository.UserDirectory                  = (*Store)(nil)
)
