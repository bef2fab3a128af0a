package bluez

import (
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

// Property names extracted from the directory. Everything else is skipped.
const (
	propertyName = "Name"
	propertyUUID = "UUID"
)

// Entry is one (object path, interface) pair of the managed object tree,
// carrying the only two properties the locators need.
type Entry struct {
	Path      ObjectPath
	Interface Interface
	Name      *string
	UUID      *UUID
}

// Directory is a flattened snapshot of GetManagedObjects, ordered by path
// and then interface name. It is rebuilt on every query.
type Directory []Entry

// HasInterface reports whether the object at path exposes iface.
func (d Directory) HasInterface(path ObjectPath, iface Interface) bool {
	for _, e := range d {
		if e.Path == path && e.Interface == iface {
			return true
		}
	}
	return false
}

// WithInterface returns the entries exposing iface, keeping directory order.
func (d Directory) WithInterface(iface Interface) []Entry {
	var out []Entry
	for _, e := range d {
		if e.Interface == iface {
			out = append(out, e)
		}
	}
	return out
}

// managedObjects is the Go shape of the a{oa{sa{sv}}} reply signature.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// DecodeManagedObjects flattens the body of a GetManagedObjects reply.
// The walk descends object -> interface -> property; a level whose shape
// does not match the signature fails the whole reply with ErrMalformedReply.
// Properties other than Name and UUID, and those two with a non-string
// value, are ignored.
func DecodeManagedObjects(body []interface{}) (Directory, error) {
	if len(body) != 1 {
		return nil, fmt.Errorf("%w: expected 1 value, got %d", ErrMalformedReply, len(body))
	}
	objects, ok := body[0].(managedObjects)
	if !ok {
		return nil, fmt.Errorf("%w: expected a{oa{sa{sv}}}, got %T", ErrMalformedReply, body[0])
	}

	dir := make(Directory, 0, len(objects)*2)
	for path, ifaces := range objects {
		if !path.IsValid() {
			return nil, fmt.Errorf("%w: invalid object path %q", ErrMalformedReply, path)
		}
		dir = append(dir, decodeObject(ObjectPath(path), ifaces)...)
	}

	sort.Slice(dir, func(i, j int) bool {
		if dir[i].Path != dir[j].Path {
			return dir[i].Path < dir[j].Path
		}
		return dir[i].Interface < dir[j].Interface
	})
	return dir, nil
}

func decodeObject(path ObjectPath, ifaces map[string]map[string]dbus.Variant) []Entry {
	entries := make([]Entry, 0, len(ifaces))
	for iface, props := range ifaces {
		e := Entry{Path: path, Interface: Interface(iface)}
		decodeProperties(&e, props)
		entries = append(entries, e)
	}
	return entries
}

func decodeProperties(e *Entry, props map[string]dbus.Variant) {
	if v, ok := stringProperty(props, propertyName); ok {
		e.Name = &v
	}
	if v, ok := stringProperty(props, propertyUUID); ok {
		u := NewUUID(v)
		e.UUID = &u
	}
}

func stringProperty(props map[string]dbus.Variant, name string) (string, bool) {
	v, ok := props[name]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}
