package domain

import "time"

// Layer identifies a medallion layer.
type Layer string

const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// ValidLayer reports whether l is a recognized layer.
func ValidLayer(l Layer) bool {
	switch l {
	case LayerBronze, LayerSilver, LayerGold:
		return true
	}
	return false
}

// LayerTable is a versioned, schema-typed table in one layer.
// CurrentVersion 0 means the table is empty: no version has ever committed.
// The declared schema only changes through append-only revisions recorded at
// commit time.
type LayerTable struct {
	ID             string
	Name           string
	Layer          Layer
	Schema         Schema
	SchemaRevision int64
	CurrentVersion int64
	PartitionKey   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Empty reports whether the table has no committed version.
func (t *LayerTable) Empty() bool { return t.CurrentVersion == 0 }

// CreateTableRequest holds parameters for registering a layer table.
type CreateTableRequest struct {
	Name         string
	Layer        Layer
	Schema       Schema
	PartitionKey *string
}

// Validate checks the request fields.
func (r CreateTableRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("table name is required")
	}
	if !ValidLayer(r.Layer) {
		return ErrValidation("unknown layer %q for table %q", r.Layer, r.Name)
	}
	if err := r.Schema.Validate(); err != nil {
		return err
	}
	if r.PartitionKey != nil && r.Schema.ColumnIndex(*r.PartitionKey) < 0 {
		return ErrValidation("partition key %q is not a column of table %q", *r.PartitionKey, r.Name)
	}
	return nil
}
