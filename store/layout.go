package store

import "fmt"

// Shape is how a collection addresses its documents.
type Shape int

const (
	// Keyed collections hold at most one document per "id".
	Keyed Shape = iota
	// AppendOnly collections are ordered sequences that allow duplicates.
	AppendOnly
)

func (s Shape) String() string {
	switch s {
	case Keyed:
		return "keyed"
	case AppendOnly:
		return "append-only"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Collection names of the default layout.
const (
	Users              = "users"
	DailyStates        = "dailyStates"
	Referrals          = "referrals"
	Orders             = "orders"
	Notifications      = "notifications"
	AmbassadorWaitlist = "ambassadorWaitlist"
	Activities         = "activities"
)

// CollectionSpec declares one collection.
type CollectionSpec struct {
	Name  string
	Shape Shape
}

// Layout is the closed set of collections a store holds. It is fixed when
// the store is opened.
type Layout []CollectionSpec

// DefaultLayout returns the application's collections.
func DefaultLayout() Layout {
	return Layout{
		{Name: Users, Shape: Keyed},
		{Name: DailyStates, Shape: Keyed},
		{Name: Referrals, Shape: AppendOnly},
		{Name: Orders, Shape: AppendOnly},
		{Name: Notifications, Shape: AppendOnly},
		{Name: AmbassadorWaitlist, Shape: AppendOnly},
		{Name: Activities, Shape: AppendOnly},
	}
}

func (l Layout) validate() error {
	if len(l) == 0 {
		return fmt.Errorf("layout has no collections")
	}
	seen := make(map[string]bool, len(l))
	for _, c := range l {
		if c.Name == "" {
			return fmt.Errorf("layout: empty collection name")
		}
		if seen[c.Name] {
			return fmt.Errorf("layout: duplicate collection %q", c.Name)
		}
		if c.Shape != Keyed && c.Shape != AppendOnly {
			return fmt.Errorf("layout: collection %q has unknown shape %v", c.Name, c.Shape)
		}
		seen[c.Name] = true
	}
	return nil
}
