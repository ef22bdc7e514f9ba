package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"newspulse/internal/domain"
	"newspulse/internal/ports"
)

// fakeStore is an in-memory ports.Store used across the usecase tests.
type fakeStore struct {
	mu        sync.Mutex
	sources   map[string]domain.Source
	items     []*domain.NewsItem
	nextID    int64
	reactions map[int64]map[int64]domain.ReactionKind

	markSentCalls []int64
	titleUpdates  map[int64]string
}

var _ ports.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:      map[string]domain.Source{},
		reactions:    map[int64]map[int64]domain.ReactionKind{},
		titleUpdates: map[int64]string{},
	}
}

func (s *fakeStore) addItem(item domain.NewsItem) *domain.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	if item.ProcessedAt.IsZero() {
		item.ProcessedAt = time.Now().UTC()
	}
	stored := item
	s.items = append(s.items, &stored)
	return &stored
}

func (s *fakeStore) UpsertSource(_ context.Context, src domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sources[src.ID]; ok {
		src.Active = existing.Active
	}
	s.sources[src.ID] = src
	return nil
}

func (s *fakeStore) SetSourceActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("unknown source %q", id)
	}
	src.Active = active
	s.sources[id] = src
	return nil
}

func (s *fakeStore) SourceActive(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[id].Active, nil
}

func (s *fakeStore) SourceWeight(_ context.Context, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[id]; ok && src.Weight >= 1 {
		return src.Weight
	}
	return 1
}

func (s *fakeStore) ActiveSources(_ context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Source
	for _, src := range s.sources {
		if src.Active {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) Sources(_ context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Source
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SourceNewsCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		if item.SourceID == id {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) LanguageStats(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]int{}
	for _, item := range s.items {
		lang := item.SummaryLang
		if lang == "" {
			lang = "unknown"
		}
		stats[lang]++
	}
	return stats, nil
}

func (s *fakeStore) IsRecentDuplicate(_ context.Context, url string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	for _, item := range s.items {
		if item.URL == url && item.ProcessedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) InsertNewsItem(_ context.Context, item *domain.NewsItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.URL == item.URL {
			return false, nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	stored := *item
	s.items = append(s.items, &stored)
	return true, nil
}

func (s *fakeStore) UpdateTitle(_ context.Context, id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titleUpdates[id] = title
	for _, item := range s.items {
		if item.ID == id {
			item.Title = title
			return nil
		}
	}
	return fmt.Errorf("unknown item %d", id)
}

func (s *fakeStore) MarkSent(_ context.Context, id int64, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markSentCalls = append(s.markSentCalls, id)
	for _, item := range s.items {
		if item.ID == id {
			item.Sent = true
			item.MessageID = messageID
			return nil
		}
	}
	return fmt.Errorf("unknown item %d", id)
}

func (s *fakeStore) UnsentBreaking(_ context.Context, limit int) ([]domain.NewsItem, error) {
	out := s.unsent(func(item *domain.NewsItem) bool { return item.Impact >= domain.BreakingImpact }, limit)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *fakeStore) UnsentDigest(_ context.Context, limit int) ([]domain.NewsItem, error) {
	out := s.unsent(func(item *domain.NewsItem) bool { return item.Impact < domain.BreakingImpact }, limit)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impact != out[j].Impact {
			return out[i].Impact > out[j].Impact
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *fakeStore) unsent(match func(*domain.NewsItem) bool, limit int) []domain.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NewsItem
	for _, item := range s.items {
		if !item.Sent && match(item) {
			out = append(out, *item)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *fakeStore) NewsIDByMessage(_ context.Context, messageID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.MessageID == messageID {
			return item.ID, nil
		}
	}
	return 0, fmt.Errorf("no item for message %d", messageID)
}

func (s *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.NewsItem
	var removed int64
	for _, item := range s.items {
		if item.ProcessedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	return removed, nil
}

func (s *fakeStore) CountProcessedSince(_ context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		if !item.ProcessedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) ToggleReaction(_ context.Context, r domain.Reaction) error {
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid reaction kind %q", r.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, item := range s.items {
		if item.ID == r.NewsID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown news id %d", r.NewsID)
	}

	byUser := s.reactions[r.NewsID]
	if byUser == nil {
		byUser = map[int64]domain.ReactionKind{}
		s.reactions[r.NewsID] = byUser
	}
	if existing, ok := byUser[r.UserID]; ok && existing == r.Kind {
		delete(byUser, r.UserID)
		return nil
	}
	byUser[r.UserID] = r.Kind
	return nil
}

func (s *fakeStore) ReactionTally(_ context.Context, newsID int64) (domain.ReactionTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tally domain.ReactionTally
	for _, kind := range s.reactions[newsID] {
		if kind == domain.ReactionLike {
			tally.Likes++
		} else {
			tally.Dislikes++
		}
	}
	return tally, nil
}

func (s *fakeStore) TopReacted(ctx context.Context, limit int) ([]domain.ReactedNews, error) {
	s.mu.Lock()
	items := append([]*domain.NewsItem(nil), s.items...)
	s.mu.Unlock()

	var out []domain.ReactedNews
	for _, item := range items {
		tally, _ := s.ReactionTally(ctx, item.ID)
		if tally.Likes+tally.Dislikes == 0 {
			continue
		}
		out = append(out, domain.ReactedNews{ID: item.ID, Title: item.Title, Tally: tally})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tally.Likes+out[i].Tally.Dislikes > out[j].Tally.Likes+out[j].Tally.Dislikes
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) SourceReactionTallies(ctx context.Context) (map[string]domain.ReactionTally, error) {
	s.mu.Lock()
	items := append([]*domain.NewsItem(nil), s.items...)
	s.mu.Unlock()

	out := map[string]domain.ReactionTally{}
	for _, item := range items {
		tally, _ := s.ReactionTally(ctx, item.ID)
		if tally.Likes+tally.Dislikes == 0 {
			continue
		}
		agg := out[item.SourceID]
		agg.Likes += tally.Likes
		agg.Dislikes += tally.Dislikes
		out[item.SourceID] = agg
	}
	return out, nil
}

// fakeMessenger records sends and can fail scripted calls.
type fakeMessenger struct {
	mu       sync.Mutex
	sends    []sentCall
	failOn   map[int]error // 1-based send index
	nextID   int64
	edits    []editCall
	sendSeen int
}

type sentCall struct {
	text string
	opts ports.SendOptions
	id   int64
}

type editCall struct {
	messageID int64
	keyboard  [][]ports.Button
}

func (m *fakeMessenger) Send(_ context.Context, text string, opts ports.SendOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendSeen++
	if err, ok := m.failOn[m.sendSeen]; ok {
		return 0, err
	}
	m.nextID++
	m.sends = append(m.sends, sentCall{text: text, opts: opts, id: m.nextID})
	return m.nextID, nil
}

func (m *fakeMessenger) EditReplyMarkup(_ context.Context, messageID int64, keyboard [][]ports.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, editCall{messageID: messageID, keyboard: keyboard})
	return nil
}

// fakeFetcher serves a canned batch and counts calls.
type fakeFetcher struct {
	id    string
	items []domain.RawItem
	calls int
}

func (f *fakeFetcher) SourceID() string { return f.id }

func (f *fakeFetcher) Fetch(context.Context) []domain.RawItem {
	f.calls++
	return f.items
}
