package credentials

import (
	"context"
	"slices"
	"sync"

	"code.autosig.org/golang/pkg/keypair"
)

// CredStore gives access to the autosig credential database.
//
// Implementations must make InsertRecord an atomic check-then-insert, and
// UpdateBinding a single record conditional update.
type CredStore interface {
	// InsertRecord saves a new record in the CredStore.
	// It errors with ErrUserExisting if an account with the same kind & id exists,
	// in which case nothing is modified.
	InsertRecord(ctx context.Context, record *Record) error

	// LoadRecord loads the kind account with id identifier in dst.
	// It errors with ErrNotFound if there is no such account.
	LoadRecord(ctx context.Context, kind AccountKind, id string, dst *Record) error

	// LoadPublicKey returns the public key of the kind account with id identifier.
	// It errors with ErrNotFound if there is no such account.
	LoadPublicKey(ctx context.Context, kind AccountKind, id string) (keypair.PublicPEM, error)

	// UpdateBinding sets field to value for the kind account with id identifier.
	// It errors with ErrNotFound if no account was modified.
	UpdateBinding(ctx context.Context, kind AccountKind, id string, field BindingField, value string) error

	// FindByOpenId loads in dst the kind account bound to the WeChat openId.
	// It errors with ErrNotFound if there is no such account.
	FindByOpenId(ctx context.Context, kind AccountKind, openId string, dst *Record) error

	// RecordCount returns the number of kind accounts in the CredStore.
	RecordCount(ctx context.Context, kind AccountKind) (int, error)
}

// Resetter is implemented by CredStore that can drop and recreate their storage.
type Resetter interface {
	// Reset removes all the accounts in the CredStore.
	Reset(ctx context.Context) error
}

type recordKey struct {
	kind AccountKind
	id   string
}

// MemCredStore provides "in memory" implementation of CredStore.
type MemCredStore struct {
	mut     sync.Mutex
	records map[recordKey]Record
}

func NewMemCredStore() *MemCredStore {
	return &MemCredStore{records: make(map[recordKey]Record)}
}

// InsertRecord saves a new record in the MemCredStore.
// It errors with ErrUserExisting if an account with the same kind & id exists.
func (self *MemCredStore) InsertRecord(_ context.Context, record *Record) error {
	err := record.Check()
	if nil != err {
		return wrapError(err, "can not save invalid record")
	}
	rk := recordKey{kind: record.Kind, id: record.Id}

	self.mut.Lock()
	defer self.mut.Unlock()

	_, conflict := self.records[rk]
	if conflict {
		return raiseError(ErrUserExisting, "%s %s already registered", record.Kind, record.Id)
	}
	saved := *record
	saved.ExpectedDigest = slices.Clone(record.ExpectedDigest)
	self.records[rk] = saved

	return nil
}

// LoadRecord loads the kind account with id identifier in dst.
func (self *MemCredStore) LoadRecord(_ context.Context, kind AccountKind, id string, dst *Record) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	record, found := self.records[recordKey{kind: kind, id: id}]
	if !found {
		return raiseError(ErrNotFound, "unknown %s id", kind)
	}
	*dst = record
	dst.ExpectedDigest = slices.Clone(record.ExpectedDigest)

	return nil
}

// LoadPublicKey returns the public key of the kind account with id identifier.
func (self *MemCredStore) LoadPublicKey(_ context.Context, kind AccountKind, id string) (keypair.PublicPEM, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	record, found := self.records[recordKey{kind: kind, id: id}]
	if !found {
		return "", raiseError(ErrNotFound, "unknown %s id", kind)
	}

	return record.PublicKey, nil
}

// UpdateBinding sets field to value for the kind account with id identifier.
func (self *MemCredStore) UpdateBinding(_ context.Context, kind AccountKind, id string, field BindingField, value string) error {
	err := field.Check(value)
	if nil != err {
		return err
	}
	rk := recordKey{kind: kind, id: id}

	self.mut.Lock()
	defer self.mut.Unlock()

	record, found := self.records[rk]
	if !found {
		return raiseError(ErrNotFound, "unknown %s id", kind)
	}
	record.SetBinding(field, value)
	self.records[rk] = record

	return nil
}

// FindByOpenId loads in dst the kind account bound to the WeChat openId.
func (self *MemCredStore) FindByOpenId(_ context.Context, kind AccountKind, openId string, dst *Record) error {
	if "" == openId {
		return raiseError(ErrNotFound, "empty openId")
	}

	self.mut.Lock()
	defer self.mut.Unlock()

	for rk, record := range self.records {
		if rk.kind == kind && record.WxOpenId == openId {
			*dst = record
			dst.ExpectedDigest = slices.Clone(record.ExpectedDigest)
			return nil
		}
	}

	return raiseError(ErrNotFound, "unknown %s openId", kind)
}

// RecordCount returns the number of kind accounts in the MemCredStore.
func (self *MemCredStore) RecordCount(_ context.Context, kind AccountKind) (int, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	count := 0
	for rk := range self.records {
		if rk.kind == kind {
			count += 1
		}
	}

	return count, nil
}

// Reset removes all the accounts in the MemCredStore.
func (self *MemCredStore) Reset(_ context.Context) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	clear(self.records)

	return nil
}

var (
	_ CredStore = &MemCredStore{}
	_ Resetter  = &MemCredStore{}
)
