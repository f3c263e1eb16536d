package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"coursedesk/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}
	return s
}

func TestMissingFileCreatedEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}

	courses, err := s.Courses()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(courses) != 0 {
		t.Fatalf("expected empty collection, got %d", len(courses))
	}
	if _, err := os.Stat(filepath.Join(dir, "courses.json")); err != nil {
		t.Fatalf("expected courses.json to be created: %v", err)
	}
}

func TestEmptyFileReadsAsEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "courses.json"), []byte("  \n"), 0o644); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}

	courses, err := s.Courses()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(courses) != 0 {
		t.Fatalf("expected empty collection, got %d", len(courses))
	}
}

func TestMalformedFileFailsLoudly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "courses.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}

	if _, err := s.Courses(); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore, got %v", err)
	}
}

func TestCourseRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := []model.Course{
		{ID: "c1", Name: "Algorithms", Description: "x", Subject: "CS", Credits: 3, CreatedBy: "t1"},
		{ID: "c2", Name: "Linear Algebra", Description: "y", Subject: "Math", Credits: 4},
	}
	if err := s.SaveCourses(in); err != nil {
		t.Fatalf("save error: %v", err)
	}

	out, err := s.Courses()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: %v vs %v", in, out)
	}
}

func TestUpdateCoursesAbortsWithoutWrite(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCourses([]model.Course{{ID: "c1", Name: "A"}}); err != nil {
		t.Fatalf("save error: %v", err)
	}

	boom := errors.New("boom")
	err := s.UpdateCourses(func(courses []model.Course) ([]model.Course, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	courses, err := s.Courses()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != "c1" {
		t.Fatalf("collection should be unchanged, got %v", courses)
	}
}

func TestAddToScheduleIdempotent(t *testing.T) {
	s := newTestStore(t)

	first, err := s.AddToSchedule("u1", "c1")
	if err != nil {
		t.Fatalf("add error: %v", err)
	}
	second, err := s.AddToSchedule("u1", "c1")
	if err != nil {
		t.Fatalf("add error: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected set of size 1, got %v then %v", first, second)
	}
}

func TestRemoveFromScheduleAbsentIsNoop(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddToSchedule("u1", "c1"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	ids, err := s.RemoveFromSchedule("u1", "c9")
	if err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "c1" {
		t.Fatalf("expected set unchanged, got %v", ids)
	}

	ids, err = s.RemoveFromSchedule("u1", "c1")
	if err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}

func TestScheduleByUserUnknownUser(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.ScheduleByUser("nobody")
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}

func TestUserByUsername(t *testing.T) {
	dir := t.TempDir()
	seed := `[{"id":"u1","username":"teacher1","role":"teacher","password":"password"}]`
	if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte(seed), 0o644); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	s, err := New(dir)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}

	user, ok, err := s.UserByUsername("teacher1")
	if err != nil || !ok {
		t.Fatalf("expected user, got ok=%v err=%v", ok, err)
	}
	if user.ID != "u1" || user.Role != "teacher" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, ok, err := s.UserByUsername("ghost"); err != nil || ok {
		t.Fatalf("expected no user, got ok=%v err=%v", ok, err)
	}
}
