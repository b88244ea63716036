package history

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func msg(id, body string, ts int64) domain.Message {
	return domain.Message{
		ID:        id,
		From:      "user@t",
		To:        "bot@t",
		Timestamp: ts,
		Kind:      domain.KindText,
		Body:      body,
	}
}

func TestAppend_SlidingWindow(t *testing.T) {
	s := New(3, testLogger())

	for i, id := range []string{"A", "B", "C", "D"} {
		s.Append("chat1", msg(id, "body "+id, int64(i)))
	}

	got := s.Recent("chat1", 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained messages, got %d", len(got))
	}
	for i, want := range []string{"B", "C", "D"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestAppend_BoundHoldsAfterEveryCall(t *testing.T) {
	s := New(5, testLogger())
	for i := 0; i < 50; i++ {
		s.Append("chat1", msg(fmt.Sprintf("m%d", i), "x", int64(i)))
		if n := len(s.Recent("chat1", 100)); n > 5 {
			t.Fatalf("bound violated after append %d: len=%d", i, n)
		}
	}
}

func TestRecent_UnknownChat(t *testing.T) {
	s := New(10, testLogger())
	if got := s.Recent("nope", 5); len(got) != 0 {
		t.Errorf("expected empty slice for unknown chat, got %d messages", len(got))
	}
}

func TestContextWindow_ExactTail(t *testing.T) {
	s := New(20, testLogger())
	for i := 0; i < 12; i++ {
		s.Append("c", msg(fmt.Sprintf("m%d", i), "x", int64(i)))
	}

	win := s.ContextWindow("c", 10)
	if len(win) != 10 {
		t.Fatalf("expected 10, got %d", len(win))
	}
	// Chronological order, exactly the tail.
	for i, m := range win {
		if want := fmt.Sprintf("m%d", i+2); m.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, m.ID)
		}
	}
}

func TestClear_Idempotent(t *testing.T) {
	s := New(10, testLogger())
	s.Append("c", msg("m1", "x", 1))
	s.Clear("c")
	s.Clear("c")
	if got := s.Recent("c", 5); len(got) != 0 {
		t.Errorf("expected cleared conversation, got %d messages", len(got))
	}
}

func TestSearch_CaseInsensitive(t *testing.T) {
	s := New(10, testLogger())
	s.Append("c", msg("m1", "Hello World", 1))
	s.Append("c", msg("m2", "goodbye", 2))
	s.Append("c", msg("m3", "the world turns", 3))

	got := s.Search("c", "WORLD")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m3" {
		t.Errorf("expected matches in original order [m1 m3], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestByTimeRange_Inclusive(t *testing.T) {
	s := New(10, testLogger())
	for i := int64(1); i <= 5; i++ {
		s.Append("c", msg(fmt.Sprintf("m%d", i), "x", i*100))
	}

	got := s.ByTimeRange("c", 200, 400)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages in [200,400], got %d", len(got))
	}
	if got[0].Timestamp != 200 || got[2].Timestamp != 400 {
		t.Errorf("range bounds not inclusive: first=%d last=%d", got[0].Timestamp, got[2].Timestamp)
	}
}

func TestStats(t *testing.T) {
	s := New(10, testLogger())

	if st := s.Stats("unknown"); st.Count != 0 || st.LastMessageTimestamp != 0 || st.AverageBodyLength != 0 {
		t.Errorf("expected zero stats for unknown chat, got %+v", st)
	}

	s.Append("c", msg("m1", "ab", 10))
	s.Append("c", msg("m2", "abcd", 20))

	st := s.Stats("c")
	if st.Count != 2 {
		t.Errorf("count: expected 2, got %d", st.Count)
	}
	if st.LastMessageTimestamp != 20 {
		t.Errorf("last timestamp: expected 20, got %d", st.LastMessageTimestamp)
	}
	if st.AverageBodyLength != 3 {
		t.Errorf("average body length: expected 3, got %f", st.AverageBodyLength)
	}
}

func TestEvictOlderThan(t *testing.T) {
	s := New(10, testLogger())

	base := time.Now()
	s.now = func() time.Time { return base.Add(-2 * time.Hour) }
	s.Append("old", msg("m1", "x", 1))

	s.now = func() time.Time { return base }
	s.Append("fresh", msg("m2", "y", 2))

	before := s.Recent("fresh", 5)

	removed := s.EvictOlderThan(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if got := s.Recent("old", 5); len(got) != 0 {
		t.Error("stale conversation should be gone")
	}

	after := s.Recent("fresh", 5)
	if len(after) != len(before) || after[0] != before[0] {
		t.Error("surviving conversation must be unchanged")
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	src := New(10, testLogger())
	src.Append("c", msg("m1", "first", 100))
	src.Append("c", msg("m2", "second", 200))

	blob, err := src.Serialize("c")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	dst := New(10, testLogger())
	if err := dst.Deserialize("c", blob); err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	want := src.Recent("c", 10)
	got := dst.Recent("c", 10)
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d differs: %+v vs %+v", i, got[i], want[i])
		}
	}
	if src.Stats("c").LastMessageTimestamp != dst.Stats("c").LastMessageTimestamp {
		t.Error("lastUpdatedAt not preserved")
	}
}

func TestDeserialize_ChatIDMismatch(t *testing.T) {
	src := New(10, testLogger())
	src.Append("chatB", msg("m1", "x", 1))
	blob, err := src.Serialize("chatB")
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	dst := New(10, testLogger())
	dst.Append("chatA", msg("keep", "original", 5))

	err = dst.Deserialize("chatA", blob)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("expected validation kind, got %v", err)
	}

	got := dst.Recent("chatA", 5)
	if len(got) != 1 || got[0].ID != "keep" {
		t.Error("existing state must be untouched on failed import")
	}
}

func TestDeserialize_MalformedBlob(t *testing.T) {
	s := New(10, testLogger())
	err := s.Deserialize("c", []byte("{not json"))
	if !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("expected validation error for malformed blob, got %v", err)
	}
}

func TestConcurrentAppendAndSweep(t *testing.T) {
	s := New(50, testLogger())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			chat := fmt.Sprintf("chat%d", w)
			for i := 0; i < 200; i++ {
				s.Append(chat, msg(fmt.Sprintf("m%d", i), "x", int64(i)))
				s.Recent(chat, 10)
				s.Stats(chat)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.EvictOlderThan(time.Hour)
		}
	}()
	wg.Wait()

	for w := 0; w < 4; w++ {
		chat := fmt.Sprintf("chat%d", w)
		if n := len(s.Recent(chat, 100)); n > 50 {
			t.Errorf("%s exceeds bound: %d", chat, n)
		}
	}
}
