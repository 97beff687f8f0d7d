package qtree

// ObjectType is a bitmask describing the category of a spatial object.
type ObjectType uint8

const (
	// TypeAny matches every object type when used as a search filter.
	TypeAny        ObjectType = 0
	TypeShip       ObjectType = 1
	TypeShipModule ObjectType = 2
	TypeProjectile ObjectType = 4 // a projectile, never a beam
	TypeBeam       ObjectType = 8 // a beam, never a projectile
	TypeAsteroid   ObjectType = 16
	TypeMoon       ObjectType = 32
)

// Is reports whether t shares at least one bit with mask.
func (t ObjectType) Is(mask ObjectType) bool {
	return t&mask != 0
}

func (t ObjectType) String() string {
	switch t {
	case TypeAny:
		return "any"
	case TypeShip:
		return "ship"
	case TypeShipModule:
		return "ship_module"
	case TypeProjectile:
		return "projectile"
	case TypeBeam:
		return "beam"
	case TypeAsteroid:
		return "asteroid"
	case TypeMoon:
		return "moon"
	default:
		return "mixed"
	}
}

// Object is one tracked entity. It is a plain value without references so it
// can be copied across any boundary.
type Object struct {
	// False once the object was removed. Inactive objects are skipped by the
	// next rebuild.
	Active bool

	// Faction of the object. 0 means a static world object.
	Loyalty uint8

	Type ObjectType

	// Slot of the object in the engine's object table. Assigned by Insert.
	ID int32

	// Center and collision radius.
	X      int32
	Y      int32
	Radius int32
}

// NewObject returns an active object. The ID is assigned on insertion.
func NewObject(loyalty uint8, t ObjectType, x, y, radius int32) Object {
	return Object{
		Active:  true,
		Loyalty: loyalty,
		Type:    t,
		ID:      -1,
		X:       x,
		Y:       y,
		Radius:  radius,
	}
}

func (o Object) Bounds() Rect {
	return RectFromPointRadius(float32(o.X), float32(o.Y), float32(o.Radius))
}

// Item is the snapshot of an object captured into a node when the tree is
// rebuilt. Traversals read items, never the live object table.
type Item struct {
	ID      int32
	X       int32
	Y       int32
	Radius  int32
	Loyalty uint8
	Type    ObjectType
}

func newItem(o *Object) Item {
	return Item{
		ID:      o.ID,
		X:       o.X,
		Y:       o.Y,
		Radius:  o.Radius,
		Loyalty: o.Loyalty,
		Type:    o.Type,
	}
}

func (it Item) Bounds() Rect {
	return RectFromPointRadius(float32(it.X), float32(it.Y), float32(it.Radius))
}

// overlaps is the circle-circle test: centers closer than the sum of radii.
func (it Item) overlaps(o Item) bool {
	dx := int64(it.X) - int64(o.X)
	dy := int64(it.Y) - int64(o.Y)
	rr := int64(it.Radius) + int64(o.Radius)
	return dx*dx+dy*dy < rr*rr
}
