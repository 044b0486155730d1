package content_test

import (
	"context"
	"errors"
	"testing"

	"mediaflow/internal/content"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
	"mediaflow/internal/testsupport"
)

func newCatalog(t *testing.T) (*content.Catalog, *store.Store) {
	t.Helper()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	return content.NewCatalog(st), st
}

func TestAddLessonRequiresCourse(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	course, err := catalog.AddCourse(ctx, content.NewItem{Title: "Go Basics", OwnerID: "alice", Tags: []string{"Go", "go"}})
	if err != nil {
		t.Fatalf("AddCourse failed: %v", err)
	}
	if got := course.Tags(); len(got) != 1 || got[0] != "go" {
		t.Fatalf("expected normalized tags, got %v", got)
	}

	lesson, err := catalog.AddLesson(ctx, content.NewItem{Title: "Goroutines", OwnerID: "alice", CourseID: course.ID()})
	if err != nil {
		t.Fatalf("AddLesson failed: %v", err)
	}
	if lesson.CourseID != course.ID() || lesson.Kind() != store.KindLesson {
		t.Fatalf("unexpected lesson: %+v", lesson)
	}

	_, err = catalog.AddLesson(ctx, content.NewItem{Title: "Nested", OwnerID: "alice", CourseID: lesson.ID()})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for lesson parent, got %v", err)
	}
	_, err = catalog.AddLesson(ctx, content.NewItem{Title: "Orphan", OwnerID: "alice", CourseID: "missing"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown course, got %v", err)
	}
	_, err = catalog.AddCourse(ctx, content.NewItem{Title: "  ", OwnerID: "alice"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
}

func TestLessonRejectsCourse(t *testing.T) {
	catalog, st := newCatalog(t)
	ctx := context.Background()
	lesson := testsupport.SeedLesson(t, st, "Channels")

	got, err := catalog.Lesson(ctx, lesson.ID)
	if err != nil {
		t.Fatalf("Lesson failed: %v", err)
	}
	if got.Title() != "Channels" || got.Owner() != "owner-1" || got.Metadata()["level"] != "intro" {
		t.Fatalf("unexpected lesson view: %+v", got)
	}
	if _, err := catalog.Lesson(ctx, lesson.CourseID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for course id, got %v", err)
	}
	if _, err := catalog.Lesson(ctx, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}

func TestResolveBatch(t *testing.T) {
	catalog, st := newCatalog(t)
	lesson := testsupport.SeedLesson(t, st, "Select")

	resolved, err := catalog.Resolve(context.Background(), []string{lesson.ID, lesson.CourseID, lesson.ID, "missing", ""})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resolved))
	}
	switch item := resolved[lesson.CourseID].(type) {
	case *content.Course:
		if item.Title() != "Select course" {
			t.Fatalf("unexpected course title %q", item.Title())
		}
	default:
		t.Fatalf("expected course, got %T", item)
	}
	if _, ok := resolved[lesson.ID].(*content.Lesson); !ok {
		t.Fatalf("expected lesson, got %T", resolved[lesson.ID])
	}
}

func TestFromItemRejectsUnknownKind(t *testing.T) {
	if _, err := content.FromItem(&store.ContentItem{ID: "x", Kind: "module"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
