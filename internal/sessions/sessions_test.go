package sessions_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/chatclerk/chatclerk/internal/sessions"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, opts ...sessions.Option) (*sessions.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append(opts, sessions.WithClock(clock.Now))
	return sessions.New(opts...), clock
}

func TestGetHistory_UnknownSession(t *testing.T) {
	s, _ := newTestStore(t)

	got := s.GetHistory("nope")
	if len(got) != 0 {
		t.Errorf("GetHistory() for unknown id returned %d messages, want 0", len(got))
	}
}

func TestAddMessage_PreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.AddMessage("c1", models.RoleUser, fmt.Sprintf("msg-%d", i))
	}

	got := s.GetHistory("c1")
	if len(got) != 5 {
		t.Fatalf("GetHistory() returned %d messages, want 5", len(got))
	}
	for i, m := range got {
		want := fmt.Sprintf("msg-%d", i)
		if m.Content != want {
			t.Errorf("messages[%d].Content = %q, want %q", i, m.Content, want)
		}
		if m.Role != models.RoleUser {
			t.Errorf("messages[%d].Role = %q, want %q", i, m.Role, models.RoleUser)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	s, clock := newTestStore(t, sessions.WithTTL(24*time.Hour))

	s.AddMessage("old", models.RoleUser, "hello")
	clock.Advance(25 * time.Hour)

	if got := s.GetHistory("old"); len(got) != 0 {
		t.Errorf("GetHistory() after TTL returned %d messages, want 0", len(got))
	}
	if got := s.ListSessions(); len(got) != 0 {
		t.Errorf("ListSessions() after TTL returned %d sessions, want 0", len(got))
	}
}

func TestTTL_TouchedSessionSurvives(t *testing.T) {
	s, clock := newTestStore(t, sessions.WithTTL(24*time.Hour))

	s.AddMessage("live", models.RoleUser, "hello")
	clock.Advance(20 * time.Hour)
	s.GetHistory("live") // touch resets the idle window
	clock.Advance(20 * time.Hour)

	if got := s.GetHistory("live"); len(got) != 1 {
		t.Errorf("GetHistory() returned %d messages, want 1", len(got))
	}
}

func TestCapacityEviction_StrictLRU(t *testing.T) {
	const capacity = 3
	s, clock := newTestStore(t, sessions.WithMaxSessions(capacity))

	for i := 0; i < capacity; i++ {
		s.AddMessage(fmt.Sprintf("s%d", i), models.RoleUser, "hi")
		clock.Advance(time.Second)
	}
	// Touch s0 so s1 becomes the least recently used.
	s.GetHistory("s0")
	clock.Advance(time.Second)

	// Overflowing insert evicts exactly one entry: s1.
	s.AddMessage("s3", models.RoleUser, "hi")

	list := s.ListSessions()
	if len(list) != capacity {
		t.Fatalf("ListSessions() returned %d sessions, want %d", len(list), capacity)
	}
	for _, info := range list {
		if info.ID == "s1" {
			t.Errorf("s1 should have been evicted as LRU, still resident")
		}
	}
	if got := s.GetHistory("s1"); len(got) != 0 {
		t.Errorf("evicted session returned %d messages, want 0", len(got))
	}
}

func TestEvictionDestroysAllFields(t *testing.T) {
	s, _ := newTestStore(t, sessions.WithMaxSessions(1))

	s.AddMessage("a", models.RoleUser, "hi")
	s.MarkOrderCompleted("a")
	s.SetPendingEscalation("a", true)
	s.SaveCustomerDetails("a", models.CustomerDetails{"name": "Dana"})

	// Insert a second session; "a" is evicted wholesale.
	s.AddMessage("b", models.RoleUser, "hi")

	if s.IsOrderCompleted("a") {
		t.Error("IsOrderCompleted() = true after eviction, want false")
	}
	if s.IsPendingEscalation("a") {
		t.Error("IsPendingEscalation() = true after eviction, want false")
	}
	if d := s.GetCustomerDetails("a"); len(d) != 0 {
		t.Errorf("GetCustomerDetails() returned %v after eviction, want empty", d)
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage("c1", models.RoleUser, "hi")
	if !s.Clear("c1") {
		t.Error("Clear() = false for existing session, want true")
	}
	if s.Clear("c1") {
		t.Error("Clear() = true for removed session, want false")
	}
	if got := s.GetHistory("c1"); len(got) != 0 {
		t.Errorf("GetHistory() after Clear returned %d messages, want 0", len(got))
	}
}

func TestClearAll(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage("a", models.RoleUser, "hi")
	s.AddMessage("b", models.RoleUser, "hi")

	if n := s.ClearAll(); n != 2 {
		t.Errorf("ClearAll() = %d, want 2", n)
	}
	if got := s.ListSessions(); len(got) != 0 {
		t.Errorf("ListSessions() after ClearAll returned %d, want 0", len(got))
	}
}

func TestOrderCompleted_Monotonic(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage("c1", models.RoleUser, "hi")
	if s.IsOrderCompleted("c1") {
		t.Error("IsOrderCompleted() = true for fresh session")
	}
	s.MarkOrderCompleted("c1")
	if !s.IsOrderCompleted("c1") {
		t.Error("IsOrderCompleted() = false after MarkOrderCompleted")
	}

	// Only an explicit clear resets the flag.
	s.Clear("c1")
	if s.IsOrderCompleted("c1") {
		t.Error("IsOrderCompleted() = true after Clear, want false")
	}
}

func TestFlagSetters_CreateAbsentSession(t *testing.T) {
	s, clock := newTestStore(t, sessions.WithTTL(time.Hour))

	// No prior AddMessage: the flag must still stick.
	s.MarkOrderCompleted("fresh")
	if !s.IsOrderCompleted("fresh") {
		t.Error("IsOrderCompleted() = false after MarkOrderCompleted on absent session, want true")
	}

	s.SetPendingEscalation("fresh2", true)
	if !s.IsPendingEscalation("fresh2") {
		t.Error("IsPendingEscalation() = false after SetPendingEscalation on absent session, want true")
	}

	s.SaveCustomerDetails("fresh3", models.CustomerDetails{"name": "Dana"})
	if got := s.GetCustomerDetails("fresh3")["name"]; got != "Dana" {
		t.Errorf("GetCustomerDetails()[name] = %q after save on absent session, want %q", got, "Dana")
	}

	// Same story when the entry expired between the check and the write.
	s.AddMessage("stale", models.RoleUser, "hi")
	clock.Advance(2 * time.Hour)
	s.MarkOrderCompleted("stale")
	if !s.IsOrderCompleted("stale") {
		t.Error("IsOrderCompleted() = false after MarkOrderCompleted on expired session, want true")
	}
}

func TestCountRecentUserMessages(t *testing.T) {
	s, clock := newTestStore(t)

	s.AddMessage("c1", models.RoleUser, "old")
	clock.Advance(25 * time.Hour)
	for i := 0; i < 3; i++ {
		s.AddMessage("c1", models.RoleUser, "recent")
		s.AddMessage("c1", models.RoleAssistant, "reply")
		clock.Advance(time.Second)
	}

	got := s.CountRecentUserMessages("c1", 24*time.Hour)
	if got != 3 {
		t.Errorf("CountRecentUserMessages() = %d, want 3 (assistant turns and stale turns excluded)", got)
	}
}

func TestCustomerDetails_CopyOnRead(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage("c1", models.RoleUser, "hi")
	s.SaveCustomerDetails("c1", models.CustomerDetails{"name": "Dana", "phone": "0521234567"})

	d := s.GetCustomerDetails("c1")
	d["name"] = "mutated"

	if got := s.GetCustomerDetails("c1")["name"]; got != "Dana" {
		t.Errorf("stored details mutated through returned map: name = %q, want %q", got, "Dana")
	}
}

func TestListSessions_Metadata(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddMessage("c1", models.RoleUser, "one")
	s.AddMessage("c1", models.RoleAssistant, "two")

	list := s.ListSessions()
	if len(list) != 1 {
		t.Fatalf("ListSessions() returned %d sessions, want 1", len(list))
	}
	if list[0].ID != "c1" || list[0].MessageCount != 2 {
		t.Errorf("ListSessions()[0] = %+v, want ID=c1 MessageCount=2", list[0])
	}

	info := s.SessionInfo("c1")
	if info == nil || info.MessageCount != 2 {
		t.Errorf("SessionInfo() = %+v, want MessageCount=2", info)
	}
	if s.SessionInfo("missing") != nil {
		t.Error("SessionInfo() for unknown id should be nil")
	}
}
