package credentials_test

import (
	"testing"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/credentials/credtest"
)

func TestMemCredStore(t *testing.T) {
	credtest.Run(t, func(t *testing.T) credentials.CredStore {
		return credentials.NewMemCredStore()
	})
}

func TestMemCredStoreCopiesDigest(t *testing.T) {
	store := credentials.NewMemCredStore()
	record := credtest.NewRecord(credentials.Teacher, "T001")
	err := store.InsertRecord(t.Context(), &record)
	if nil != err {
		t.Fatalf("failed InsertRecord, got error %v", err)
	}
	record.ExpectedDigest[0] = 'X'

	var loaded credentials.Record
	err = store.LoadRecord(t.Context(), credentials.Teacher, "T001", &loaded)
	if nil != err {
		t.Fatalf("failed LoadRecord, got error %v", err)
	}
	if 'X' == loaded.ExpectedDigest[0] {
		t.Error("stored digest aliases caller memory")
	}
}
