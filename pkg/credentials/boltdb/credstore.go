// Package boltdb provides a persistent credentials.CredStore that keeps data in a single file.
package boltdb

import (
	"context"
	"crypto"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
	_ "golang.org/x/crypto/blake2s"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

const (
	connectTimeout = 5 * time.Second
	hashAlgo       = crypto.BLAKE2s_256
	openIdIdx      = "openIdIdx"
)

// CredStore is a credentials.CredStore that persists accounts in a bbolt database.
//
// Each AccountKind has its own bucket keyed by account id, values are CBOR encoded Records.
// The openIdIdx bucket maps hashed WeChat openids to account ids.
type CredStore struct {
	db *bolt.DB
}

// New opens the dbpath database, creating its buckets if needed.
// The returned CredStore holds the database file lock until Close is called.
func New(dbpath string) (*CredStore, error) {
	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}

	err = db.Update(createBuckets)
	if nil != err {
		db.Close()
		return nil, wrapError(err, "failed db initialization")
	}

	return &CredStore{db: db}, nil
}

// Close releases the database.
func (self *CredStore) Close() error {
	return wrapError(self.db.Close(), "failed db.Close")
}

func bucketNames() []string {
	names := make([]string, 0, len(credentials.Kinds)+1)
	for _, kind := range credentials.Kinds {
		names = append(names, tableName(kind))
	}
	return append(names, openIdIdx)
}

func tableName(kind credentials.AccountKind) string {
	return kind.String() + "Tbl"
}

func createBuckets(tx *bolt.Tx) error {
	for _, bucketname := range bucketNames() {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketname))
		if nil != err {
			return wrapError(err, "failed %s bucket creation", bucketname)
		}
	}

	return nil
}

// InsertRecord saves a new record in the CredStore.
// It errors with credentials.ErrUserExisting if an account with the same kind & id exists.
func (self *CredStore) InsertRecord(_ context.Context, record *credentials.Record) error {
	err := record.Check()
	if nil != err {
		return wrapError(err, "record is invalid")
	}

	srzrecord, err := cbor.Marshal(record)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(record)")
	}

	err = self.db.Update(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, record.Kind)
		if nil != err {
			return err
		}
		key := []byte(record.Id)
		if nil != sch.recordTbl.Get(key) {
			return wrapError(credentials.ErrUserExisting, "%s %s already registered", record.Kind, record.Id)
		}
		err = sch.recordTbl.Put(key, srzrecord)
		if nil != err {
			return wrapError(err, "failed storing record in bucket")
		}
		if "" != record.WxOpenId {
			err = sch.openIdIdx.Put(openIdKey(record.Kind, record.WxOpenId), key)
			if nil != err {
				return wrapError(err, "failed updating the openIdIdx bucket")
			}
		}

		return nil
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// LoadRecord loads the kind account with id identifier in dst.
func (self *CredStore) LoadRecord(_ context.Context, kind credentials.AccountKind, id string, dst *credentials.Record) error {
	err := self.db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, kind)
		if nil != err {
			return err
		}
		return sch.load(id, dst)
	})

	return wrapError(err, "failed db.View")
}

// LoadPublicKey returns the public key of the kind account with id identifier.
// Only the public key field of the stored record is decoded.
func (self *CredStore) LoadPublicKey(_ context.Context, kind credentials.AccountKind, id string) (keypair.PublicPEM, error) {
	var pub publicKeyField
	err := self.db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, kind)
		if nil != err {
			return err
		}
		srzrecord := sch.recordTbl.Get([]byte(id))
		if nil == srzrecord {
			return wrapError(credentials.ErrNotFound, "unknown %s id", kind)
		}
		return wrapError(cbor.Unmarshal(srzrecord, &pub), "failed unmarshaling public key")
	})
	if nil != err {
		return "", wrapError(err, "failed db.View")
	}

	return pub.PublicKey, nil
}

// publicKeyField decodes the PublicKey of a CBOR encoded credentials.Record.
type publicKeyField struct {
	PublicKey keypair.PublicPEM `cbor:"7,keyasint"`
}

// UpdateBinding sets field to value for the kind account with id identifier.
func (self *CredStore) UpdateBinding(_ context.Context, kind credentials.AccountKind, id string, field credentials.BindingField, value string) error {
	err := field.Check(value)
	if nil != err {
		return err
	}

	err = self.db.Update(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, kind)
		if nil != err {
			return err
		}
		var record credentials.Record
		err = sch.load(id, &record)
		if nil != err {
			return err
		}
		record.SetBinding(field, value)
		srzrecord, err := cbor.Marshal(record)
		if nil != err {
			return wrapError(err, "failed cbor.Marshal(record)")
		}

		return wrapError(sch.recordTbl.Put([]byte(id), srzrecord), "failed storing record in bucket")
	})

	return wrapError(err, "failed db.Update")
}

// FindByOpenId loads in dst the kind account bound to the WeChat openId.
func (self *CredStore) FindByOpenId(_ context.Context, kind credentials.AccountKind, openId string, dst *credentials.Record) error {
	if "" == openId {
		return wrapError(credentials.ErrNotFound, "empty openId")
	}
	err := self.db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, kind)
		if nil != err {
			return err
		}
		id := sch.openIdIdx.Get(openIdKey(kind, openId))
		if nil == id {
			return wrapError(credentials.ErrNotFound, "unknown %s openId", kind)
		}
		var record credentials.Record
		err = sch.load(string(id), &record)
		if nil != err {
			return err
		}
		if openId != record.WxOpenId {
			return wrapError(credentials.ErrNotFound, "stale openIdIdx entry")
		}
		*dst = record

		return nil
	})

	return wrapError(err, "failed db.View")
}

// RecordCount returns the number of kind accounts in the CredStore.
func (self *CredStore) RecordCount(_ context.Context, kind credentials.AccountKind) (int, error) {
	var count int
	err := self.db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx, kind)
		if nil != err {
			return err
		}
		count = sch.recordTbl.Stats().KeyN

		return nil
	})
	if nil != err {
		return 0, wrapError(err, "failed db.View")
	}

	return count, nil
}

// Reset removes all the accounts in the CredStore.
func (self *CredStore) Reset(_ context.Context) error {
	err := self.db.Update(func(tx *bolt.Tx) error {
		for _, bucketname := range bucketNames() {
			err := tx.DeleteBucket([]byte(bucketname))
			if nil != err && !errors.Is(err, berrors.ErrBucketNotFound) {
				return wrapError(err, "failed deleting %s bucket", bucketname)
			}
		}
		return createBuckets(tx)
	})

	return wrapError(err, "failed db.Update")
}

// schema holds the buckets used to store one AccountKind
type schema struct {
	kind      credentials.AccountKind
	recordTbl *bolt.Bucket
	openIdIdx *bolt.Bucket
}

func loadSchema(tx *bolt.Tx, kind credentials.AccountKind) (schema, error) {
	err := kind.Check()
	if nil != err {
		return schema{}, err
	}
	rv := schema{
		kind:      kind,
		recordTbl: tx.Bucket([]byte(tableName(kind))),
		openIdIdx: tx.Bucket([]byte(openIdIdx)),
	}
	if nil == rv.recordTbl || nil == rv.openIdIdx {
		err = newError("1 or more bucket is missing")
	}

	return rv, err
}

func (self schema) load(id string, dst *credentials.Record) error {
	srzrecord := self.recordTbl.Get([]byte(id))
	if nil == srzrecord {
		return wrapError(credentials.ErrNotFound, "unknown %s id", self.kind)
	}
	var record credentials.Record
	err := cbor.Unmarshal(srzrecord, &record)
	if nil != err {
		return wrapError(err, "failed unmarshaling record")
	}
	*dst = record

	return nil
}

// openIdKey returns the openIdIdx key of openId.
// openId is hashed to preserve privacy.
func openIdKey(kind credentials.AccountKind, openId string) []byte {
	h := hashAlgo.New()
	h.Write([]byte(openId))
	return h.Sum([]byte{byte(kind)})
}

var (
	_ credentials.CredStore = &CredStore{}
	_ credentials.Resetter  = &CredStore{}
)
