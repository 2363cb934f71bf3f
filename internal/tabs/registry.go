// internal/tabs/registry.go

// Pakiet tabs zarządza kartami i panelami: rejestr sesji z
// monotonicznymi identyfikatorami, deduplikacją tytułów, śledzeniem
// karty aktywnej i ograniczoną liczbą paneli dzielonych.
package tabs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	apperr "sshmux/internal/error"
	"sshmux/internal/models"
	"sshmux/internal/session"
)

// MaxSplit ogranicza liczbę jednoczesnych paneli dzielonych
const MaxSplit = 3

// ErrNotFound zgłaszany gdy karta o podanym identyfikatorze nie istnieje
var ErrNotFound = errors.New("tab not found")

// Factory tworzy sesję dla nowej karty. Rejestr nadaje identyfikator
// i tytuł; resztę (połączenie, powierzchnia, schowek) składa fabryka.
type Factory func(id int, title string, host models.Host) (*session.Session, error)

// Registry jest rejestrem kart. Identyfikatory rosną monotonicznie
// i nigdy nie wracają do puli; tytuły są deduplikowane sufiksem (N).
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	sessions []*session.Session // kolejność kart
	nextID   int
	activeID int // 0 = brak aktywnej karty
	splitIDs map[int]struct{}
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		nextID:   1,
		splitIDs: make(map[int]struct{}),
	}
}

// Open tworzy i uruchamia nową kartę dla hosta. Nowa karta staje się
// aktywna. Identyfikator jest zużywany także przy nieudanym starcie -
// nigdy nie wraca do puli.
func (r *Registry) Open(host models.Host) (*session.Session, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	title := NextTitle(host.TitleBase(), r.titlesLocked())
	r.mu.Unlock()

	sess, err := r.factory(id, title, host)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %v", err)
	}
	if err := sess.Open(); err != nil {
		_ = sess.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions = append(r.sessions, sess)
	r.activeID = id
	r.mu.Unlock()
	return sess, nil
}

// Close zamyka kartę i usuwa ją z rejestru. Gdy zamykana karta była
// aktywna, aktywność przechodzi na sąsiednią.
func (r *Registry) Close(id int) error {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return ErrNotFound
	}
	sess := r.sessions[idx]
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	delete(r.splitIDs, id)
	if r.activeID == id {
		// Aktywność przechodzi na pierwszą pozostałą kartę
		if len(r.sessions) > 0 {
			r.activeID = r.sessions[0].ID()
		} else {
			r.activeID = 0
		}
	}
	r.mu.Unlock()

	// Zamykanie sesji poza blokadą - Close może chwilę trwać
	return sess.Close()
}

// Activate ustawia kartę aktywną
func (r *Registry) Activate(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(id) < 0 {
		return ErrNotFound
	}
	r.activeID = id
	return nil
}

// ToggleSplit przenosi kartę do paneli dzielonych albo z powrotem.
// Panele dzielone są widoczne obok karty aktywnej, więc karta
// przeniesiona do paneli oddaje aktywność pierwszej karcie spoza
// paneli. Gdy takiej nie ma, aktywność zostaje przy karcie - chwilowe
// nakładanie się aktywnej z panelami jest dozwolone.
func (r *Registry) ToggleSplit(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(id) < 0 {
		return ErrNotFound
	}

	if _, ok := r.splitIDs[id]; ok {
		delete(r.splitIDs, id)
		if r.activeID == 0 {
			r.activeID = id
		}
		return nil
	}

	if len(r.splitIDs) >= MaxSplit {
		return apperr.New(apperr.CapacityError,
			fmt.Sprintf("split capacity reached (%d panes)", MaxSplit), nil)
	}
	r.splitIDs[id] = struct{}{}
	if r.activeID == id {
		if next := r.firstUnsplitLocked(); next != 0 {
			r.activeID = next
		}
	}
	return nil
}

// Reorder przesuwa kartę na nową pozycję
func (r *Registry) Reorder(id, newIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	if newIndex < 0 || newIndex >= len(r.sessions) {
		return fmt.Errorf("index %d out of range", newIndex)
	}

	sess := r.sessions[idx]
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	rest := append([]*session.Session{}, r.sessions[newIndex:]...)
	r.sessions = append(r.sessions[:newIndex], sess)
	r.sessions = append(r.sessions, rest...)
	return nil
}

// Visible zwraca sesje widoczne na ekranie w kolejności kart:
// kartę aktywną i wszystkie panele dzielone
func (r *Registry) Visible() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*session.Session
	for _, sess := range r.sessions {
		if sess.ID() == r.activeID {
			out = append(out, sess)
			continue
		}
		if _, ok := r.splitIDs[sess.ID()]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// Sessions zwraca wszystkie karty w kolejności
func (r *Registry) Sessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Get zwraca kartę o podanym identyfikatorze
func (r *Registry) Get(id int) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return r.sessions[idx], true
}

// Active zwraca kartę aktywną albo nil
func (r *Registry) Active() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(r.activeID)
	if idx < 0 {
		return nil
	}
	return r.sessions[idx]
}

// ActiveID zwraca identyfikator karty aktywnej; 0 gdy brak
func (r *Registry) ActiveID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// SplitIDs zwraca identyfikatory paneli dzielonych w kolejności kart
func (r *Registry) SplitIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, sess := range r.sessions {
		if _, ok := r.splitIDs[sess.ID()]; ok {
			out = append(out, sess.ID())
		}
	}
	return out
}

// Len zwraca liczbę otwartych kart
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll zamyka wszystkie karty, zbierając błędy
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = nil
	r.activeID = 0
	r.splitIDs = make(map[int]struct{})
	r.mu.Unlock()

	var errs []string
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("tab %d: %v", sess.ID(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing tabs: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (r *Registry) indexLocked(id int) int {
	for i, sess := range r.sessions {
		if sess.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Registry) titlesLocked() []string {
	titles := make([]string, 0, len(r.sessions))
	for _, sess := range r.sessions {
		titles = append(titles, sess.Title())
	}
	return titles
}

// firstUnsplitLocked zwraca pierwszą kartę spoza paneli dzielonych;
// 0 gdy wszystkie karty są w panelach
func (r *Registry) firstUnsplitLocked() int {
	for _, sess := range r.sessions {
		if _, ok := r.splitIDs[sess.ID()]; !ok {
			return sess.ID()
		}
	}
	return 0
}
