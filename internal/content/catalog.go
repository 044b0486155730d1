package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Catalog resolves content ids against the content tables.
type Catalog struct {
	store *store.Store
}

// NewCatalog constructs a catalog over st.
func NewCatalog(st *store.Store) *Catalog {
	return &Catalog{store: st}
}

// Get resolves a single content id.
func (c *Catalog) Get(ctx context.Context, id string) (Content, error) {
	if strings.TrimSpace(id) == "" {
		return nil, services.Wrap(services.ErrValidation, "content", "get", "content id is required", nil)
	}
	item, err := c.store.GetContent(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "get", "load content", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "content", "get", fmt.Sprintf("content %s", id), nil)
	}
	return FromItem(item)
}

// Lesson resolves id and requires it to be a lesson.
func (c *Catalog) Lesson(ctx context.Context, id string) (*Lesson, error) {
	item, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lesson, ok := item.(*Lesson)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "content", "lesson", fmt.Sprintf("lesson %s (found %s)", id, item.Kind()), nil)
	}
	return lesson, nil
}

// Resolve fetches many ids in one round trip. Unknown ids are absent from the result.
func (c *Catalog) Resolve(ctx context.Context, ids []string) (map[string]Content, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	rows, err := c.store.GetContentBatch(ctx, unique)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "resolve", "load content batch", err)
	}
	out := make(map[string]Content, len(rows))
	for id, row := range rows {
		item, err := FromItem(row)
		if err != nil {
			return nil, err
		}
		out[id] = item
	}
	return out, nil
}

// List returns every item of kind, or all items when kind is empty.
func (c *Catalog) List(ctx context.Context, kind store.ContentKind) ([]Content, error) {
	rows, err := c.store.ListContent(ctx, kind)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "list", "load content", err)
	}
	out := make([]Content, 0, len(rows))
	for _, row := range rows {
		item, err := FromItem(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// NewItem describes content to add to the catalog.
type NewItem struct {
	Title    string
	OwnerID  string
	CourseID string
	Tags     []string
	Metadata map[string]string
}

// AddCourse inserts a course.
func (c *Catalog) AddCourse(ctx context.Context, in NewItem) (*Course, error) {
	if strings.TrimSpace(in.CourseID) != "" {
		return nil, services.Wrap(services.ErrValidation, "content", "add course", "courses cannot belong to a course", nil)
	}
	item, err := c.add(ctx, store.KindCourse, in)
	if err != nil {
		return nil, err
	}
	return item.(*Course), nil
}

// AddLesson inserts a lesson under an existing course.
func (c *Catalog) AddLesson(ctx context.Context, in NewItem) (*Lesson, error) {
	parent, err := c.Get(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}
	if parent.Kind() != store.KindCourse {
		return nil, services.Wrap(services.ErrValidation, "content", "add lesson", fmt.Sprintf("%s is a %s, not a course", in.CourseID, parent.Kind()), nil)
	}
	item, err := c.add(ctx, store.KindLesson, in)
	if err != nil {
		return nil, err
	}
	return item.(*Lesson), nil
}

func (c *Catalog) add(ctx context.Context, kind store.ContentKind, in NewItem) (Content, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "content", "add", "title is required", nil)
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, services.Wrap(services.ErrValidation, "content", "add", "owner is required", nil)
	}
	row := &store.ContentItem{
		Kind:     kind,
		Title:    title,
		OwnerID:  strings.TrimSpace(in.OwnerID),
		CourseID: strings.TrimSpace(in.CourseID),
		Tags:     in.Tags,
		Metadata: in.Metadata,
	}
	if err := c.store.InsertContent(ctx, row); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, services.Wrap(services.ErrValidation, "content", "add", "duplicate content id", err)
		}
		return nil, services.Wrap(services.ErrTransient, "content", "add", "insert content", err)
	}
	return FromItem(row)
}
