package unitprice

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FavoriteOptions carries the user-editable fields of a favorite.
type FavoriteOptions struct {
	Tags     []string
	FolderID *string
	Note     string

	// NewFolderName, when set, creates a folder and files the favorite
	// under it. FolderID is ignored in that case.
	NewFolderName string
}

// Organizer groups favorites into folders and answers search queries over them.
type Organizer struct {
	store    Store
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	validate *validator.Validate
}

// NewOrganizer creates an Organizer on top of store.
func NewOrganizer(store Store, clock Clock, idgen IDGenerator, logger Logger) *Organizer {
	return &Organizer{
		store:    store,
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
		validate: validator.New(),
	}
}

// ListFolders returns every folder whose name contains search, ignoring case.
// An empty search matches everything.
func (o *Organizer) ListFolders(ctx context.Context, search string) ([]*Folder, error) {
	folders, err := o.store.GetFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return folders, nil
	}
	out := make([]*Folder, 0, len(folders))
	for _, f := range folders {
		if strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out, nil
}

// ListFavorites returns the favorites filed under folderID (nil = root)
// that match search on a tag, the note, or the rendered price.
func (o *Organizer) ListFavorites(ctx context.Context, folderID *string, search string) ([]*Favorite, error) {
	favs, err := o.store.GetFavorites(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return favs, nil
	}
	out := make([]*Favorite, 0, len(favs))
	for _, f := range favs {
		if matchesFavorite(f, q) {
			out = append(out, f)
		}
	}
	return out, nil
}

func matchesFavorite(f *Favorite, q string) bool {
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(f.Note), q) {
		return true
	}
	return strings.Contains(strconv.FormatFloat(f.Item.Price, 'f', -1, 64), q)
}

// CreateFolder creates an unstyled folder.
func (o *Organizer) CreateFolder(ctx context.Context, name string) (*Folder, error) {
	return o.CreateFolderWithStyle(ctx, name, "", "")
}

// CreateFolderWithStyle creates a folder with an optional icon and color.
func (o *Organizer) CreateFolderWithStyle(ctx context.Context, name, icon, color string) (*Folder, error) {
	now := o.clock.Now()
	folder := &Folder{
		ID:        o.idgen.New(),
		Name:      strings.TrimSpace(name),
		Icon:      strings.TrimSpace(icon),
		Color:     strings.TrimSpace(color),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.check(folder); err != nil {
		return nil, err
	}
	if err := o.store.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	o.logger.Info("folder created", "id", folder.ID, "name", folder.Name)
	return folder, nil
}

// RenameFolder changes the folder's name and bumps its UpdatedAt.
func (o *Organizer) RenameFolder(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := o.validate.Var(name, "required,max=64"); err != nil {
		return fmt.Errorf("%w: folder name: %w", ErrInvalidInput, err)
	}
	if err := o.store.RenameFolder(ctx, id, name, o.clock.Now()); err != nil {
		return fmt.Errorf("renaming folder: %w", err)
	}
	o.logger.Info("folder renamed", "id", id, "name", name)
	return nil
}

// DeleteFolder removes the folder and moves its favorites to the root.
func (o *Organizer) DeleteFolder(ctx context.Context, id string) error {
	if err := o.store.DeleteFolder(ctx, id); err != nil {
		return fmt.Errorf("deleting folder: %w", err)
	}
	o.logger.Info("folder deleted", "id", id)
	return nil
}

// Favorite saves a copy of item with the given options under a fresh store
// key. Favoriting the same item twice yields two entries; use UpdateFavorite
// to edit an existing one.
func (o *Organizer) Favorite(ctx context.Context, item Item, opts FavoriteOptions) (*Favorite, error) {
	fav := &Favorite{Item: item}
	if err := o.save(ctx, fav, opts, "saving favorite"); err != nil {
		return nil, err
	}
	o.logger.Info("favorite saved", "id", fav.ID, "item_id", item.ID)
	return fav, nil
}

// UpdateFavorite replaces the tags, folder and note of the favorite stored
// under id and refreshes its FavoriteAt. The item snapshot is kept.
func (o *Organizer) UpdateFavorite(ctx context.Context, id int64, opts FavoriteOptions) (*Favorite, error) {
	favs, err := o.store.GetAllFavorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	i := slices.IndexFunc(favs, func(f *Favorite) bool { return f.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrFavoriteNotFound, id)
	}

	fav := &Favorite{ID: id, Item: favs[i].Item}
	if err := o.save(ctx, fav, opts, "updating favorite"); err != nil {
		return nil, err
	}
	o.logger.Info("favorite updated", "id", fav.ID)
	return fav, nil
}

// save fills the user-editable fields of fav from opts and stores it. A
// folder named by opts.NewFolderName is created first and removed again if
// the favorite cannot be stored.
func (o *Organizer) save(ctx context.Context, fav *Favorite, opts FavoriteOptions, op string) error {
	folderID := opts.FolderID
	if folderID != nil && *folderID == "" {
		folderID = nil
	}

	fav.Tags = NormalizeTags(opts.Tags)
	fav.FolderID = folderID
	fav.FavoriteAt = o.clock.Now()
	fav.Note = strings.TrimSpace(opts.Note)
	if err := o.check(fav); err != nil {
		return err
	}

	var created *Folder
	if opts.NewFolderName != "" {
		folder, err := o.CreateFolder(ctx, opts.NewFolderName)
		if err != nil {
			return err
		}
		created = folder
		fav.FolderID = &folder.ID
	}

	if err := o.store.AddFavorite(ctx, fav); err != nil {
		if created != nil {
			if derr := o.store.DeleteFolder(ctx, created.ID); derr != nil {
				o.logger.Warn("removing unused folder failed", "id", created.ID, "error", derr)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Unfavorite deletes a favorite by its store key.
func (o *Organizer) Unfavorite(ctx context.Context, id int64) error {
	if err := o.store.DeleteFavorite(ctx, id); err != nil {
		return fmt.Errorf("deleting favorite: %w", err)
	}
	o.logger.Info("favorite deleted", "id", id)
	return nil
}

// IsFavorited reports whether an item with itemID is saved in any folder.
func (o *Organizer) IsFavorited(ctx context.Context, itemID int64) (bool, error) {
	fav, err := o.findByItemID(ctx, itemID)
	if err != nil {
		return false, err
	}
	return fav != nil, nil
}

// FavoritesByTag returns the favorites carrying tag, across all folders.
func (o *Organizer) FavoritesByTag(ctx context.Context, tag string) ([]*Favorite, error) {
	favs, err := o.store.GetFavoritesByTag(ctx, strings.TrimSpace(tag))
	if err != nil {
		return nil, fmt.Errorf("listing favorites by tag: %w", err)
	}
	return favs, nil
}

func (o *Organizer) findByItemID(ctx context.Context, itemID int64) (*Favorite, error) {
	favs, err := o.store.GetAllFavorites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	for _, f := range favs {
		if f.Item.ID == itemID {
			return f, nil
		}
	}
	return nil, nil
}

func (o *Organizer) check(v any) error {
	if err := o.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// NormalizeTags trims every tag and drops empty ones and repeats, keeping
// the first occurrence's position.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
