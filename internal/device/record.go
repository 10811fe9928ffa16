package device

import (
	"bytes"
	"sync"
	"time"

	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

// Product information slots, resolved once.
var (
	slotN2kVersion         = n2k.ProductInformationSchema.MustSlot(n2k.FieldN2kVersion)
	slotProductCode        = n2k.ProductInformationSchema.MustSlot(n2k.FieldProductCode)
	slotModelID            = n2k.ProductInformationSchema.MustSlot(n2k.FieldModelID)
	slotSoftwareCode       = n2k.ProductInformationSchema.MustSlot(n2k.FieldSoftwareCode)
	slotModelVersion       = n2k.ProductInformationSchema.MustSlot(n2k.FieldModelVersion)
	slotModelSerialCode    = n2k.ProductInformationSchema.MustSlot(n2k.FieldModelSerialCode)
	slotCertificationLevel = n2k.ProductInformationSchema.MustSlot(n2k.FieldCertificationLevel)
	slotLoadEquivalency    = n2k.ProductInformationSchema.MustSlot(n2k.FieldLoadEquivalency)
)

// Record is the registry's mutable state for one node. Its lock guards every
// field; the registry takes it only while holding its own lock.
type Record struct {
	mu sync.RWMutex

	address  uint8
	identity Identity
	named    bool

	product    *ProductInfo
	productRaw []byte
	config     *ConfigInfo
	configRaw  []byte

	lastSeen time.Time
}

func newRecord(address uint8) *Record {
	return &Record{address: address}
}

// Address returns the node's current bus address.
func (r *Record) Address() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.address
}

// Name returns the node's NAME, or zero before an identity was applied.
func (r *Record) Name() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity.Name
}

// Apply updates the record from a frame and reports whether any visible
// attribute changed. Frames of unhandled PGNs and malformed identity payloads
// change nothing.
func (r *Record) Apply(f n2k.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed bool
	switch f.PGN {
	case n2k.PGNISOAddressClaim:
		changed = r.applyIdentity(f.Data)
	case n2k.PGNProductInformation:
		changed = r.applyProduct(f.Data)
	case n2k.PGNConfigurationInformation:
		changed = r.applyConfig(f.Data)
	default:
		return false
	}

	if !f.Timestamp.IsZero() && f.Timestamp.After(r.lastSeen) {
		r.lastSeen = f.Timestamp
	}
	return changed
}

func (r *Record) applyIdentity(data []byte) bool {
	name, ok := ParseName(data)
	if !ok {
		return false
	}
	if r.named && r.identity.Name == name {
		return false
	}
	r.identity = DecodeIdentity(name)
	r.named = true
	return true
}

func (r *Record) applyProduct(data []byte) bool {
	if r.product != nil && bytes.Equal(r.productRaw, data) {
		return false
	}

	msg := n2k.ParseMessage(n2k.ProductInformationSchema, data)
	r.product = &ProductInfo{
		N2kVersion:         validFloat(msg.GetSlot(slotN2kVersion)),
		ProductCode:        validUint[uint16](msg.GetSlot(slotProductCode)),
		ModelID:            msg.GetSlot(slotModelID).Text,
		SoftwareCode:       msg.GetSlot(slotSoftwareCode).Text,
		ModelVersion:       msg.GetSlot(slotModelVersion).Text,
		ModelSerialCode:    msg.GetSlot(slotModelSerialCode).Text,
		CertificationLevel: validUint[uint8](msg.GetSlot(slotCertificationLevel)),
		LoadEquivalency:    validUint[uint8](msg.GetSlot(slotLoadEquivalency)),
	}
	r.productRaw = bytes.Clone(data)
	return true
}

func validFloat(v n2k.Value) *float64 {
	if !v.IsValid() {
		return nil
	}
	return &v.Float
}

// validUint narrows a decoded unsigned field. The schema bounds the raw
// width, so the conversion never truncates.
func validUint[T uint8 | uint16](v n2k.Value) *T {
	if !v.IsValid() {
		return nil
	}
	n := T(v.Uint)
	return &n
}

func (r *Record) applyConfig(data []byte) bool {
	if r.config != nil && bytes.Equal(r.configRaw, data) {
		return false
	}

	values := n2k.ParseMessage(n2k.ConfigurationInformationSchema, data).Variables()
	r.config = &ConfigInfo{
		InstallationDescription1: values[0].Text,
		InstallationDescription2: values[1].Text,
		Manufacturer:             values[2].Text,
	}
	r.configRaw = bytes.Clone(data)
	return true
}

// rebind moves the record to a new address. The caller holds the registry
// write lock.
func (r *Record) rebind(address uint8) {
	r.mu.Lock()
	r.address = address
	r.mu.Unlock()
}

// Snapshot returns a copy of the record.
func (r *Record) Snapshot() Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := Device{
		Address:  r.address,
		Name:     FormatName(r.identity.Name),
		Identity: r.identity,
		LastSeen: r.lastSeen,
	}
	if r.product != nil {
		p := r.product.clone()
		d.Product = &p
	}
	if r.config != nil {
		c := *r.config
		d.Config = &c
	}
	return d
}
