package birthdays

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/repository"
	"github.com/igreja/tesouraria/internal/service/notification"
)

// UpcomingWindow is how many days ahead the upcoming list reaches.
const UpcomingWindow = 60

const (
	KindToday    = "today"
	KindTomorrow = "tomorrow"
)

// MemberSource supplies the current member list.
type MemberSource interface {
	Items() []models.Member
}

// View groups the birthdays around a given day.
type View struct {
	Date      models.Date       `json:"date"`
	Today     []models.Birthday `json:"today"`
	Tomorrow  []models.Birthday `json:"tomorrow"`
	Upcoming  []models.Birthday `json:"upcoming"`
	ThisMonth []models.Birthday `json:"thisMonth"`
}

// Service derives birthdays from members and tracks congratulations.
type Service struct {
	members  MemberSource
	store    repository.DocumentStore
	session  auth.Source
	notifier notification.Notifier
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time

	notifyMu sync.Mutex
}

// NewService wires the birthday service. Calendar days are evaluated in
// loc; nil means UTC.
func NewService(members MemberSource, store repository.DocumentStore, session auth.Source, notifier notification.Notifier, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		members:  members,
		store:    store,
		session:  session,
		notifier: notifier,
		logger:   logger,
		location: loc,
		now:      time.Now,
	}
}

// Compute returns the age on today and the number of days until the next
// birthday, 0 when it is today. A 29 February birthday is celebrated on
// 1 March in non-leap years.
func Compute(birth, today models.Date) (age, daysUntil int) {
	age = today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}

	next := models.NewDate(today.Year(), birth.Month(), birth.Day())
	if next.Before(today) {
		next = models.NewDate(today.Year()+1, birth.Month(), birth.Day())
	}
	return age, today.DaysUntil(next)
}

// Today returns the current calendar day in the service location.
func (s *Service) Today() models.Date {
	return models.DateOf(s.now().In(s.location))
}

// List builds the birthday view for today. Inactive members and members
// without a birth date are left out.
func (s *Service) List(ctx context.Context) (View, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return View{}, apperror.AuthRequired("list birthdays")
	}

	today := s.Today()
	congratulated, err := s.congratulatedOn(ctx, user.ID, today)
	if err != nil {
		return View{}, err
	}

	view := View{
		Date:      today,
		Today:     []models.Birthday{},
		Tomorrow:  []models.Birthday{},
		Upcoming:  []models.Birthday{},
		ThisMonth: []models.Birthday{},
	}
	for _, b := range s.derive(today) {
		b.Congratulated = congratulated[b.MemberID]
		switch b.DaysUntil {
		case 0:
			view.Today = append(view.Today, b)
		case 1:
			view.Tomorrow = append(view.Tomorrow, b)
		}
		if b.DaysUntil <= UpcomingWindow {
			view.Upcoming = append(view.Upcoming, b)
		}
		if b.BirthDate.Month() == today.Month() {
			view.ThisMonth = append(view.ThisMonth, b)
		}
	}

	sort.SliceStable(view.ThisMonth, func(i, j int) bool {
		return view.ThisMonth[i].BirthDate.Day() < view.ThisMonth[j].BirthDate.Day()
	})
	return view, nil
}

// MarkCongratulated records that the member was congratulated today.
func (s *Service) MarkCongratulated(ctx context.Context, memberID string) error {
	user := s.session.CurrentUser()
	if user == nil {
		return apperror.Persistence("congratulate", repository.CollectionCongratulated, apperror.AuthRequired("congratulate"))
	}
	if memberID == "" {
		return apperror.ValidationFailed("memberId", "member id is required")
	}

	today := s.Today()
	marker := models.BirthdayMarker{
		ID:        markerKey(user.ID, memberID, "", today),
		OwnerID:   user.ID,
		MemberID:  memberID,
		Date:      today,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, repository.CollectionCongratulated, marker.ID, &marker); err != nil {
		return apperror.Persistence("congratulate", repository.CollectionCongratulated, err)
	}
	return nil
}

// UnmarkCongratulated removes today's congratulation marker. Removing a
// marker that does not exist is not an error.
func (s *Service) UnmarkCongratulated(ctx context.Context, memberID string) error {
	user := s.session.CurrentUser()
	if user == nil {
		return apperror.Persistence("uncongratulate", repository.CollectionCongratulated, apperror.AuthRequired("uncongratulate"))
	}

	key := markerKey(user.ID, memberID, "", s.Today())
	err := s.store.Delete(ctx, repository.CollectionCongratulated, key, repository.OwnedBy(user.ID))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperror.Persistence("uncongratulate", repository.CollectionCongratulated, err)
	}
	return nil
}

// NotifyUpcoming sends one notification per member whose birthday is
// today or tomorrow and who was not congratulated yet. Each
// (owner, member, kind, day) is notified at most once: the marker is
// written before the notification goes out.
func (s *Service) NotifyUpcoming(ctx context.Context) (int, error) {
	user := s.session.CurrentUser()
	if user == nil {
		return 0, apperror.AuthRequired("notify birthdays")
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	today := s.Today()
	congratulated, err := s.congratulatedOn(ctx, user.ID, today)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, b := range s.derive(today) {
		if b.DaysUntil > 1 || congratulated[b.MemberID] {
			continue
		}
		kind := KindToday
		if b.DaysUntil == 1 {
			kind = KindTomorrow
		}

		claimed, err := s.claim(ctx, user.ID, b.MemberID, kind, today)
		if err != nil {
			s.logger.Warn("birthday notice marker failed", zap.String("member_id", b.MemberID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		s.notifier.Send(ctx, message(b, kind))
		sent++
	}
	return sent, nil
}

func (s *Service) derive(today models.Date) []models.Birthday {
	var out []models.Birthday
	for _, m := range s.members.Items() {
		if m.BirthDate == nil || m.BirthDate.IsZero() || m.Status == models.MemberInactive {
			continue
		}
		age, days := Compute(*m.BirthDate, today)
		out = append(out, models.Birthday{
			MemberID:  m.ID,
			Name:      m.Name,
			BirthDate: *m.BirthDate,
			Age:       age,
			DaysUntil: days,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysUntil < out[j].DaysUntil
	})
	return out
}

func (s *Service) congratulatedOn(ctx context.Context, ownerID string, day models.Date) (map[string]bool, error) {
	filter := repository.OwnedBy(ownerID)
	filter["date"] = day.String()

	docs, err := s.store.Find(ctx, repository.CollectionCongratulated, filter, nil)
	if err != nil {
		return nil, apperror.Query(repository.CollectionCongratulated, err)
	}

	out := make(map[string]bool, len(docs))
	for _, doc := range docs {
		var marker models.BirthdayMarker
		if err := bson.Unmarshal(doc, &marker); err != nil {
			return nil, apperror.Query(repository.CollectionCongratulated, err)
		}
		out[marker.MemberID] = true
	}
	return out, nil
}

// claim writes the notice marker unless it already exists.
func (s *Service) claim(ctx context.Context, ownerID, memberID, kind string, day models.Date) (bool, error) {
	key := markerKey(ownerID, memberID, kind, day)

	_, err := s.store.Get(ctx, repository.CollectionBirthdayNotices, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	marker := models.BirthdayMarker{
		ID:        key,
		OwnerID:   ownerID,
		MemberID:  memberID,
		Kind:      kind,
		Date:      day,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, repository.CollectionBirthdayNotices, key, &marker); err != nil {
		return false, err
	}
	return true, nil
}

func markerKey(ownerID, memberID, kind string, day models.Date) string {
	if kind == "" {
		return fmt.Sprintf("%s_%s_%s", ownerID, memberID, day)
	}
	return fmt.Sprintf("%s_%s_%s_%s", ownerID, memberID, kind, day)
}

func message(b models.Birthday, kind string) notification.Notification {
	if kind == KindToday {
		return notification.Notification{
			Title:              "Aniversário hoje!",
			Body:               fmt.Sprintf("%s completa %d anos hoje.", b.Name, b.Age),
			Tag:                "aniversario-hoje",
			RequireInteraction: true,
		}
	}
	return notification.Notification{
		Title: "Aniversário amanhã",
		Body:  fmt.Sprintf("%s completa %d anos amanhã.", b.Name, b.Age+1),
		Tag:   "aniversario-amanha",
	}
}
