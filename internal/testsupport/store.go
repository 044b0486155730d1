package testsupport

import (
	"context"
	"testing"

	"mediaflow/internal/config"
	"mediaflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedLesson inserts a course and one lesson belonging to it, returning the lesson.
func SeedLesson(t testing.TB, st *store.Store, title string) *store.ContentItem {
	t.Helper()

	ctx := context.Background()
	course := &store.ContentItem{Kind: store.KindCourse, Title: title + " course", OwnerID: "owner-1"}
	if err := st.InsertContent(ctx, course); err != nil {
		t.Fatalf("insert course: %v", err)
	}
	lesson := &store.ContentItem{
		Kind:     store.KindLesson,
		Title:    title,
		OwnerID:  "owner-1",
		CourseID: course.ID,
		Tags:     []string{"video"},
		Metadata: map[string]string{"level": "intro"},
	}
	if err := st.InsertContent(ctx, lesson); err != nil {
		t.Fatalf("insert lesson: %v", err)
	}
	return lesson
}
