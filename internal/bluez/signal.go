package bluez

import (
	"github.com/godbus/dbus/v5"
)

const propertyValue = "Value"

var propertiesChangedSignal = InterfaceProperties.Member("PropertiesChanged")

// PropertiesChanged is the part of an org.freedesktop.DBus.Properties
// PropertiesChanged signal a GATT client consumes.
type PropertiesChanged struct {
	Path      ObjectPath
	Interface Interface
	Value     []byte
	HasValue  bool
}

// ParsePropertiesChanged extracts the changed Value byte array from sig.
// It returns false when sig is not a PropertiesChanged signal or its body
// does not have the (s, a{sv}, as) shape.
func ParsePropertiesChanged(sig *dbus.Signal) (PropertiesChanged, bool) {
	if sig == nil || sig.Name != propertiesChangedSignal || len(sig.Body) < 2 {
		return PropertiesChanged{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return PropertiesChanged{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return PropertiesChanged{}, false
	}

	pc := PropertiesChanged{Path: ObjectPath(sig.Path), Interface: Interface(iface)}
	if v, ok := changed[propertyValue]; ok {
		if b, ok := v.Value().([]byte); ok {
			pc.Value = b
			pc.HasValue = true
		}
	}
	return pc, true
}

// NewValueSignal builds the signal BlueZ emits when a characteristic value
// changes. Used by fakes and tests.
func NewValueSignal(path ObjectPath, value []byte) *dbus.Signal {
	return &dbus.Signal{
		Sender: Service,
		Path:   path.dbus(),
		Name:   propertiesChangedSignal,
		Body: []interface{}{
			string(InterfaceGattCharacteristic),
			map[string]dbus.Variant{propertyValue: dbus.MakeVariant(value)},
			[]string{},
		},
	}
}
