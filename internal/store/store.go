// Package store persists the three service collections (users, courses,
// schedules) as flat JSON files. Users and courses are arrays; schedules
// is an object mapping a user id to an array of course ids. Every
// operation re-reads the backing file and writes it back in full; a
// mutex per collection serializes read-modify-write cycles within the
// process. Writes are plain overwrites, not atomic renames, so a crash
// mid-write can corrupt a file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"coursedesk/internal/model"
)

// ErrCorruptStore marks a backing file whose contents are not valid JSON.
// Reads fail loudly rather than silently resetting the collection.
var ErrCorruptStore = errors.New("corrupt store file")

const (
	usersFile     = "users.json"
	coursesFile   = "courses.json"
	schedulesFile = "schedules.json"
)

type Store struct {
	dir string

	usersMu     sync.Mutex
	coursesMu   sync.Mutex
	schedulesMu sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Users() ([]model.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	var users []model.User
	if err := s.readJSON(usersFile, &users, "[]"); err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// UserByUsername returns the matching user and whether one was found.
func (s *Store) UserByUsername(username string) (model.User, bool, error) {
	users, err := s.Users()
	if err != nil {
		return model.User{}, false, err
	}
	for _, user := range users {
		if user.Username == username {
			return user, true, nil
		}
	}
	return model.User{}, false, nil
}

func (s *Store) Courses() ([]model.Course, error) {
	s.coursesMu.Lock()
	defer s.coursesMu.Unlock()
	return s.readCoursesLocked()
}

func (s *Store) SaveCourses(courses []model.Course) error {
	s.coursesMu.Lock()
	defer s.coursesMu.Unlock()
	return s.writeJSON(coursesFile, courses)
}

// UpdateCourses runs fn against the current course collection and writes
// back its result, all under the collection lock. Returning an error from
// fn aborts without writing.
func (s *Store) UpdateCourses(fn func(courses []model.Course) ([]model.Course, error)) error {
	s.coursesMu.Lock()
	defer s.coursesMu.Unlock()

	courses, err := s.readCoursesLocked()
	if err != nil {
		return err
	}
	updated, err := fn(courses)
	if err != nil {
		return err
	}
	return s.writeJSON(coursesFile, updated)
}

func (s *Store) readCoursesLocked() ([]model.Course, error) {
	var courses []model.Course
	if err := s.readJSON(coursesFile, &courses, "[]"); err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}

func (s *Store) Schedules() (map[string][]string, error) {
	s.schedulesMu.Lock()
	defer s.schedulesMu.Unlock()
	return s.readSchedulesLocked()
}

func (s *Store) ScheduleByUser(userID string) ([]string, error) {
	schedules, err := s.Schedules()
	if err != nil {
		return nil, err
	}
	ids := schedules[userID]
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AddToSchedule unions courseID into the user's id set and returns the
// resulting set. Adding an already-present id is a no-op success.
func (s *Store) AddToSchedule(userID, courseID string) ([]string, error) {
	s.schedulesMu.Lock()
	defer s.schedulesMu.Unlock()

	schedules, err := s.readSchedulesLocked()
	if err != nil {
		return nil, err
	}
	ids := schedules[userID]
	for _, id := range ids {
		if id == courseID {
			return ids, nil
		}
	}
	ids = append(ids, courseID)
	schedules[userID] = ids
	if err := s.writeJSON(schedulesFile, schedules); err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveFromSchedule drops courseID from the user's id set and returns
// the resulting set. Removing an absent id is a no-op success.
func (s *Store) RemoveFromSchedule(userID, courseID string) ([]string, error) {
	s.schedulesMu.Lock()
	defer s.schedulesMu.Unlock()

	schedules, err := s.readSchedulesLocked()
	if err != nil {
		return nil, err
	}
	ids := schedules[userID]
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != courseID {
			kept = append(kept, id)
		}
	}
	schedules[userID] = kept
	if err := s.writeJSON(schedulesFile, schedules); err != nil {
		return nil, err
	}
	return kept, nil
}

func (s *Store) readSchedulesLocked() (map[string][]string, error) {
	var schedules map[string][]string
	if err := s.readJSON(schedulesFile, &schedules, "{}"); err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = map[string][]string{}
	}
	return schedules, nil
}

// readJSON loads a collection file into out. A missing file is created
// holding the empty collection; an empty or whitespace-only file counts
// as the empty collection; anything unparseable fails with
// ErrCorruptStore.
func (s *Store) readJSON(name string, out interface{}, empty string) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(empty+"\n"), 0o644); err != nil {
			return err
		}
		data = []byte(empty)
	} else if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		data = []byte(empty)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptStore, name, err)
	}
	return nil
}

func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name), append(data, '\n'), 0o644)
}
