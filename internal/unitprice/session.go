package unitprice

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Mode selects how a Session interprets its inputs.
type Mode string

const (
	// ModeAmount takes a price, a per-unit amount and an optional count.
	ModeAmount Mode = "amount"
	// ModeLabeled fixes the per-unit amount at 1, requires a count, and
	// records every successful add to history.
	ModeLabeled Mode = "labeled"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAmount, ModeLabeled:
		return Mode(s), nil
	case "":
		return ModeAmount, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, s)
}

// Evaluator turns a free-text numeric expression into a number.
type Evaluator interface {
	Evaluate(text string) (float64, error)
}

// Session holds the items of one comparison and ranks them by unit price.
// It is owned by a single caller and is not safe for concurrent use.
type Session struct {
	mode   Mode
	items  []Item
	lastID int64

	store  Store
	eval   Evaluator
	clock  Clock
	idgen  IDGenerator
	logger Logger
}

// NewSession creates an empty session.
func NewSession(mode Mode, store Store, eval Evaluator, clock Clock, idgen IDGenerator, logger Logger) *Session {
	return &Session{
		mode:   mode,
		store:  store,
		eval:   eval,
		clock:  clock,
		idgen:  idgen,
		logger: logger,
	}
}

func (s *Session) Mode() Mode { return s.mode }

// SetMode switches the input mode. Items already in the list are kept.
func (s *Session) SetMode(mode Mode) { s.mode = mode }

// Items returns a copy of the current item list in insertion order.
func (s *Session) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// AddItem evaluates the expressions, appends a new Item and returns it.
//
// In labeled mode quantityExpr is ignored and the session is committed
// after the add. If that commit fails the item stays in the list and is
// returned together with the storage error.
func (s *Session) AddItem(ctx context.Context, priceExpr, quantityExpr, countExpr, label string) (*Item, error) {
	item, err := s.NewItem(priceExpr, quantityExpr, countExpr, label)
	if err != nil {
		return nil, err
	}
	s.items = append(s.items, *item)
	s.logger.Debug("item added", "id", item.ID, "unit_price", item.UnitPrice)

	if s.mode == ModeLabeled {
		if _, err := s.Commit(ctx); err != nil {
			s.logger.Warn("recording comparison failed", "error", err)
			return item, fmt.Errorf("recording comparison: %w", err)
		}
	}
	return item, nil
}

// NewItem evaluates the expressions under the session's mode and returns
// the Item AddItem would append, without adding or recording it.
func (s *Session) NewItem(priceExpr, quantityExpr, countExpr, label string) (*Item, error) {
	price, err := s.evaluate("price", priceExpr)
	if err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	perUnit := 1.0
	var count int
	switch s.mode {
	case ModeLabeled:
		count, err = s.requiredCount(countExpr)
		if err != nil {
			return nil, err
		}
	default:
		perUnit, err = s.evaluate("quantity", quantityExpr)
		if err != nil {
			return nil, err
		}
		if perUnit <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}
		count, err = s.optionalCount(countExpr)
		if err != nil {
			return nil, err
		}
	}

	total := perUnit * float64(count)
	if total <= 0 || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidInput)
	}

	now := s.clock.Now()
	return &Item{
		ID:            s.nextID(now.UnixMilli()),
		Price:         price,
		PerUnitAmount: perUnit,
		Count:         count,
		TotalAmount:   total,
		UnitPrice:     price / total,
		Timestamp:     now.Format("15:04"),
		ThemeIndex:    len(s.items) % ThemeCount,
		Label:         strings.TrimSpace(label),
	}, nil
}

// RemoveItem removes the item with the given id. Unknown ids are ignored.
func (s *Session) RemoveItem(id int64) {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Reset empties the item list. Persisted history is untouched.
func (s *Session) Reset() {
	s.items = nil
}

// BestUnitPrice returns the lowest unit price in the list, or NoBestPrice
// when the list is empty.
func (s *Session) BestUnitPrice() float64 {
	if len(s.items) == 0 {
		return NoBestPrice
	}
	best := s.items[0].UnitPrice
	for _, it := range s.items[1:] {
		if it.UnitPrice < best {
			best = it.UnitPrice
		}
	}
	return best
}

// IsBest reports whether item ties for the lowest unit price.
func (s *Session) IsBest(item Item) bool {
	return len(s.items) > 0 && item.UnitPrice == s.BestUnitPrice()
}

// BestItems returns every item whose unit price equals the minimum.
func (s *Session) BestItems() []Item {
	best := s.BestUnitPrice()
	var out []Item
	for _, it := range s.items {
		if it.UnitPrice == best {
			out = append(out, it)
		}
	}
	return out
}

// Commit snapshots the current list into a HistoryRecord and stores it.
// The session list is left unchanged whether or not the store succeeds.
func (s *Session) Commit(ctx context.Context) (*HistoryRecord, error) {
	if len(s.items) == 0 {
		return nil, ErrEmptySession
	}

	best := s.BestUnitPrice()
	rec := &HistoryRecord{
		ID:             s.idgen.New(),
		Items:          s.Items(),
		CreatedAt:      s.clock.Now(),
		TotalItemCount: len(s.items),
	}
	for _, it := range rec.Items {
		if it.UnitPrice == best {
			rec.BestItem = it
			break
		}
	}

	if err := s.store.AddHistory(ctx, rec); err != nil {
		return nil, fmt.Errorf("adding history: %w", err)
	}
	s.logger.Info("comparison recorded", "id", rec.ID, "items", rec.TotalItemCount)
	return rec, nil
}

func (s *Session) nextID(ms int64) int64 {
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return ms
}

func (s *Session) evaluate(field, text string) (float64, error) {
	v, err := s.eval.Evaluate(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidInput, field, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not a finite number", ErrInvalidInput, field)
	}
	return v, nil
}

// optionalCount treats a blank, unparsable or non-positive count as 1.
func (s *Session) optionalCount(text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 1, nil
	}
	v, err := s.eval.Evaluate(text)
	if err != nil || math.IsNaN(v) || v <= 0 {
		return 1, nil
	}
	return toCount(v)
}

func (s *Session) requiredCount(text string) (int, error) {
	v, err := s.evaluate("count", text)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("%w: count must be at least 1", ErrInvalidInput)
	}
	return toCount(v)
}

func toCount(v float64) (int, error) {
	if math.IsInf(v, 0) || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: count must be a whole number", ErrInvalidInput)
	}
	return int(v), nil
}
