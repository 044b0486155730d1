package content

import (
	"fmt"
	"maps"
	"slices"

	"mediaflow/internal/store"
)

// Content is a course or a lesson. The set of implementations is closed.
type Content interface {
	Kind() store.ContentKind
	ID() string
	Title() string
	Owner() string
	Tags() []string
	Metadata() map[string]string
	sealed()
}

type base struct {
	id       string
	title    string
	owner    string
	tags     []string
	metadata map[string]string
}

func (b base) ID() string                  { return b.id }
func (b base) Title() string               { return b.title }
func (b base) Owner() string               { return b.owner }
func (b base) Tags() []string              { return slices.Clone(b.tags) }
func (b base) Metadata() map[string]string { return maps.Clone(b.metadata) }
func (base) sealed()                       {}

// Course groups lessons.
type Course struct {
	base
}

// Kind implements Content.
func (Course) Kind() store.ContentKind { return store.KindCourse }

// Lesson is a single unit of teaching; uploaded media attaches to lessons.
type Lesson struct {
	base
	CourseID string
}

// Kind implements Content.
func (Lesson) Kind() store.ContentKind { return store.KindLesson }

// FromItem decodes a stored row into its variant.
func FromItem(item *store.ContentItem) (Content, error) {
	if item == nil {
		return nil, fmt.Errorf("decode content: nil item")
	}
	b := base{id: item.ID, title: item.Title, owner: item.OwnerID, tags: item.Tags, metadata: item.Metadata}
	switch item.Kind {
	case store.KindCourse:
		return &Course{base: b}, nil
	case store.KindLesson:
		return &Lesson{base: b, CourseID: item.CourseID}, nil
	default:
		return nil, fmt.Errorf("decode content %s: unknown kind %q", item.ID, item.Kind)
	}
}
