package unitprice

import "time"

// ThemeCount is the number of cosmetic themes items cycle through.
const ThemeCount = 4

// NoBestPrice is returned by BestUnitPrice when there is nothing to compare.
const NoBestPrice = -1.0

// Item is one entered price/quantity row of a comparison.
// UnitPrice is fixed at creation and never recomputed.
type Item struct {
	ID            int64   `json:"id"`
	Price         float64 `json:"price"`
	PerUnitAmount float64 `json:"perUnitAmount"`
	Count         int     `json:"count"`
	TotalAmount   float64 `json:"totalAmount"`
	UnitPrice     float64 `json:"unitPrice"`
	Timestamp     string  `json:"timestamp"` // "15:04", display only
	ThemeIndex    int     `json:"themeIndex"`
	Label         string  `json:"label,omitempty"`
}

// HistoryRecord is an immutable snapshot of a comparison session at commit time.
type HistoryRecord struct {
	ID             string    `json:"id"`
	Items          []Item    `json:"items"`
	BestItem       Item      `json:"bestItem"`
	CreatedAt      time.Time `json:"createdAt"`
	TotalItemCount int       `json:"totalItemCount"`
}

// Folder groups favorites. Folders never nest.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=64"`
	Icon      string    `json:"icon,omitempty" validate:"max=32"`
	Color     string    `json:"color,omitempty" validate:"max=32"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Favorite is a durably saved copy of an Item.
//
// ID is the store key and is unrelated to Item.ID: a zero ID asks the store
// to assign one. FolderID nil means the favorite lives at the root.
type Favorite struct {
	ID         int64     `json:"dbId"`
	Item       Item      `json:"item"`
	Tags       []string  `json:"tags" validate:"max=20,dive,required,max=32"`
	FolderID   *string   `json:"folderId"`
	FavoriteAt time.Time `json:"favoriteAt"`
	Note       string    `json:"note,omitempty" validate:"max=500"`
}

// InFolder reports whether the favorite is filed under folderID (nil = root).
func (f *Favorite) InFolder(folderID *string) bool {
	if f.FolderID == nil || folderID == nil {
		return f.FolderID == nil && folderID == nil
	}
	return *f.FolderID == *folderID
}
