package geoquery

import (
	"context"

	"github.com/veilgeo/veilgeo/geomodel"
	"github.com/veilgeo/veilgeo/kv"
)

// PlaintextResolver restores the display fields and the original
// coordinates of a stored record. True-distance ranking needs the
// plaintext originals, they are not derivable from transformed vectors.
type PlaintextResolver interface {
	Resolve(ctx context.Context, rec geomodel.POIRecord) (geomodel.PlainPOI, bool)
}

// MemoryResolver serves plaintext from the ingestion side table.
type MemoryResolver struct {
	store kv.KVS[string, geomodel.PlainPOI]
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{store: kv.NewXMap[string, geomodel.PlainPOI]()}
}

var _ PlaintextResolver = (*MemoryResolver)(nil)

func (r *MemoryResolver) Put(p geomodel.PlainPOI) {
	r.store.Set(p.ID, p)
}

func (r *MemoryResolver) PutAll(pois map[string]geomodel.PlainPOI) {
	for _, p := range pois {
		r.store.Set(p.ID, p)
	}
}

func (r *MemoryResolver) Delete(id string) {
	r.store.Delete(id)
}

func (r *MemoryResolver) Resolve(_ context.Context, rec geomodel.POIRecord) (geomodel.PlainPOI, bool) {
	return r.store.Get(rec.ID)
}
