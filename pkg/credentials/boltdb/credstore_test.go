package boltdb

import (
	"errors"
	"path"
	"testing"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/credentials/credtest"
)

func TestNew(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "autosig.db")
	store, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	err = store.Close()
	if nil != err {
		t.Errorf("failed Close, got error %v", err)
	}
}

func TestCredStore(t *testing.T) {
	credtest.Run(t, newTestStore)
}

func TestReopen(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "autosig.db")
	store, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	record := credtest.NewRecord(credentials.Student, "S001")
	record.WxOpenId = "openid-S001"
	err = store.InsertRecord(t.Context(), &record)
	if nil != err {
		t.Fatalf("failed InsertRecord, got error %v", err)
	}
	err = store.UpdateBinding(t.Context(), credentials.Student, "S001", credentials.SSID, "lab-2")
	if nil != err {
		t.Fatalf("failed UpdateBinding, got error %v", err)
	}
	store.Close()

	store, err = New(dbPath)
	if nil != err {
		t.Fatalf("failed reopening, got error %v", err)
	}
	defer store.Close()

	var loaded credentials.Record
	err = store.FindByOpenId(t.Context(), credentials.Student, "openid-S001", &loaded)
	if nil != err {
		t.Fatalf("failed FindByOpenId, got error %v", err)
	}
	record.BindingSSID = "lab-2"
	if err = credtest.Equal(record, loaded); nil != err {
		t.Error(err)
	}

	err = printDB(t, store.db)
	if nil != err {
		t.Errorf("failed printDB, got error %v", err)
	}
}

func TestOpenIdIsHashed(t *testing.T) {
	store := newTestStore(t).(*CredStore)
	record := credtest.NewRecord(credentials.Student, "S001")
	record.WxOpenId = "openid-S001"
	err := store.InsertRecord(t.Context(), &record)
	if nil != err {
		t.Fatalf("failed InsertRecord, got error %v", err)
	}

	err = store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(openIdIdx)).ForEach(func(k, v []byte) error {
			if string(k[1:]) == record.WxOpenId {
				return errors.New("openid stored in clear")
			}
			if "S001" != string(v) {
				return errors.New("unexpected index value")
			}
			return nil
		})
	})
	if nil != err {
		t.Error(err)
	}
}

func TestLoadPublicKeySkipsPrivateKey(t *testing.T) {
	store := newTestStore(t).(*CredStore)
	record := credtest.NewRecord(credentials.Teacher, "T001")
	err := store.InsertRecord(t.Context(), &record)
	if nil != err {
		t.Fatalf("failed InsertRecord, got error %v", err)
	}

	// replace the stored private key with a value that does not decode as a PrivatePEM
	err = store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(tableName(credentials.Teacher)))
		var fields map[int]any
		err := cbor.Unmarshal(bucket.Get([]byte("T001")), &fields)
		if nil != err {
			return err
		}
		fields[8] = 42
		srzrecord, err := cbor.Marshal(fields)
		if nil != err {
			return err
		}
		return bucket.Put([]byte("T001"), srzrecord)
	})
	if nil != err {
		t.Fatalf("failed rewriting record, got error %v", err)
	}

	var loaded credentials.Record
	err = store.LoadRecord(t.Context(), credentials.Teacher, "T001", &loaded)
	if nil == err {
		t.Error("LoadRecord decoded an invalid private key")
	}
	pub, err := store.LoadPublicKey(t.Context(), credentials.Teacher, "T001")
	if nil != err {
		t.Fatalf("failed LoadPublicKey, got error %v", err)
	}
	if record.PublicKey != pub {
		t.Error("LoadPublicKey returned another key")
	}
}

func newTestStore(t *testing.T) credentials.CredStore {
	store, err := New(path.Join(t.TempDir(), "autosig.db"))
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func printDB(t *testing.T, db *bolt.DB) error {
	return db.View(func(tx *bolt.Tx) error {
		for _, bucketname := range bucketNames() {
			bucket := tx.Bucket([]byte(bucketname))
			t.Logf("%s bucket:", bucketname)
			err := bucket.ForEach(func(k, v []byte) error {
				t.Logf("    %X: %d bytes", k, len(v))
				return nil
			})
			if nil != err {
				return wrapError(err, "failed %s.ForEach", bucketname)
			}
		}
		return nil
	})
}
