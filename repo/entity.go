package repo

import "go.mongodb.org/mongo-driver/bson"

// Entity is implemented by every persisted domain object. An entity is
// ephemeral until its first successful save; the repository marks it
// persisted afterwards.
type Entity interface {
	GetID() ID
	SetID(ID)
	// IsEphemeral reports whether the entity has not been persisted yet.
	IsEphemeral() bool
	// MarkPersisted records that the entity now exists in the store.
	MarkPersisted()
	// IsMutable reports whether a second save may overwrite the stored
	// document. Revisioned entities return false: each save of a new
	// revision is a distinct document.
	IsMutable() bool
}

// BaseEntity carries the bookkeeping shared by all entities and is meant
// to be embedded in domain types.
type BaseEntity struct {
	id        ID
	persisted bool
	immutable bool
}

// NewBaseEntity returns an ephemeral, mutable base with the given id.
func NewBaseEntity(id ID) BaseEntity {
	return BaseEntity{id: id}
}

// NewImmutableBaseEntity returns an ephemeral base for revisioned
// entities, which are never updated in place.
func NewImmutableBaseEntity(id ID) BaseEntity {
	return BaseEntity{id: id, immutable: true}
}

func (e *BaseEntity) GetID() ID { return e.id }

func (e *BaseEntity) SetID(id ID) { e.id = id }

func (e *BaseEntity) IsEphemeral() bool { return !e.persisted }

func (e *BaseEntity) MarkPersisted() { e.persisted = true }

func (e *BaseEntity) IsMutable() bool { return !e.immutable }

// Serializer converts between an entity and its stored document form.
// Backward may need extra context (for example the dataset storage an
// item belongs to) to reconstruct object graphs; C carries it. Null
// returns the type's null placeholder, handed out instead of an error
// when a lookup finds no match.
type Serializer[T Entity, C any] interface {
	Forward(entity T) (bson.M, error)
	Backward(doc bson.M, extra C) (T, error)
	Null() T
}
