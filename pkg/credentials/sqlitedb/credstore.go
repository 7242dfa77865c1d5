package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

// CredStore is the SQLite implementation of credentials.CredStore.
type CredStore struct {
	db *DB
}

// NewCredStore returns a CredStore using db. The schema migrations are applied on db.
func NewCredStore(db *DB) (*CredStore, error) {
	err := Migrate(db.Writer)
	if nil != err {
		return nil, err
	}

	return &CredStore{db: db}, nil
}

// Close closes the CredStore database.
func (self *CredStore) Close() error {
	return self.db.Close()
}

// InsertRecord saves a new record in the CredStore.
// It errors with credentials.ErrUserExisting if an account with the same kind & id exists.
func (self *CredStore) InsertRecord(ctx context.Context, record *credentials.Record) error {
	err := record.Check()
	if nil != err {
		return wrapError(err, "invalid record")
	}

	const query = `INSERT INTO account (kind, uid, name, bssid, ssid, expected_digest, public_key, private_key, wx_openid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT (kind, uid) DO NOTHING`
	res, err := self.db.Writer.ExecContext(
		ctx,
		query,
		int(record.Kind),
		record.Id,
		record.DisplayName,
		record.BindingBSSID,
		record.BindingSSID,
		record.ExpectedDigest,
		string(record.PublicKey),
		string(record.PrivateKey),
		record.WxOpenId,
	)
	if nil != err {
		return wrapError(err, "failed saving record")
	}
	created, err := res.RowsAffected()
	if nil != err {
		return wrapError(err, "failed RowsAffected")
	}
	if 0 == created {
		return wrapError(credentials.ErrUserExisting, "%s %s already registered", record.Kind, record.Id)
	}

	return nil
}

const selectRecord = `SELECT kind, uid, name, bssid, ssid, expected_digest, public_key, private_key, COALESCE(wx_openid, '')
	FROM account`

// LoadRecord loads the kind account with id identifier in dst.
func (self *CredStore) LoadRecord(ctx context.Context, kind credentials.AccountKind, id string, dst *credentials.Record) error {
	row := self.db.Reader.QueryRowContext(ctx, selectRecord+` WHERE kind = ? AND uid = ?`, int(kind), id)
	err := scanRecord(row, dst)
	if errors.Is(err, sql.ErrNoRows) {
		return wrapError(credentials.ErrNotFound, "unknown %s id", kind)
	}

	return wrapError(err, "failed loading record")
}

// LoadPublicKey returns the public key of the kind account with id identifier.
func (self *CredStore) LoadPublicKey(ctx context.Context, kind credentials.AccountKind, id string) (keypair.PublicPEM, error) {
	var pub string
	const query = `SELECT public_key FROM account WHERE kind = ? AND uid = ?`
	err := self.db.Reader.QueryRowContext(ctx, query, int(kind), id).Scan(&pub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", wrapError(credentials.ErrNotFound, "unknown %s id", kind)
	}
	if nil != err {
		return "", wrapError(err, "failed loading public key")
	}

	return keypair.PublicPEM(pub), nil
}

// UpdateBinding sets field to value for the kind account with id identifier.
func (self *CredStore) UpdateBinding(ctx context.Context, kind credentials.AccountKind, id string, field credentials.BindingField, value string) error {
	err := field.Check(value)
	if nil != err {
		return err
	}

	query := fmt.Sprintf(`UPDATE account SET %s = ? WHERE kind = ? AND uid = ?`, field.Column())
	res, err := self.db.Writer.ExecContext(ctx, query, value, int(kind), id)
	if nil != err {
		return wrapError(err, "failed UPDATE query")
	}
	updated, err := res.RowsAffected()
	if nil != err {
		return wrapError(err, "failed RowsAffected")
	}
	if 0 == updated {
		return wrapError(credentials.ErrNotFound, "unknown %s id", kind)
	}

	return nil
}

// FindByOpenId loads in dst the kind account bound to the WeChat openId.
func (self *CredStore) FindByOpenId(ctx context.Context, kind credentials.AccountKind, openId string, dst *credentials.Record) error {
	if "" == openId {
		return wrapError(credentials.ErrNotFound, "empty openId")
	}
	row := self.db.Reader.QueryRowContext(
		ctx,
		selectRecord+` WHERE kind = ? AND wx_openid = ? ORDER BY id LIMIT 1`,
		int(kind),
		openId,
	)
	err := scanRecord(row, dst)
	if errors.Is(err, sql.ErrNoRows) {
		return wrapError(credentials.ErrNotFound, "unknown %s openId", kind)
	}

	return wrapError(err, "failed loading record")
}

// RecordCount returns the number of kind accounts in the CredStore.
func (self *CredStore) RecordCount(ctx context.Context, kind credentials.AccountKind) (int, error) {
	var rv int
	err := self.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM account WHERE kind = ?`, int(kind)).Scan(&rv)
	if nil != err {
		return 0, wrapError(err, "failed count query")
	}

	return rv, nil
}

// Reset removes all the accounts in the CredStore.
func (self *CredStore) Reset(ctx context.Context) error {
	_, err := self.db.Writer.ExecContext(ctx, `DELETE FROM account`)

	return wrapError(err, "failed DELETE query")
}

func scanRecord(row *sql.Row, dst *credentials.Record) error {
	var kind int
	var pub, priv string
	var rec credentials.Record
	err := row.Scan(
		&kind,
		&rec.Id,
		&rec.DisplayName,
		&rec.BindingBSSID,
		&rec.BindingSSID,
		&rec.ExpectedDigest,
		&pub,
		&priv,
		&rec.WxOpenId,
	)
	if nil != err {
		return err
	}
	rec.Kind = credentials.AccountKind(kind)
	rec.PublicKey = keypair.PublicPEM(pub)
	rec.PrivateKey = keypair.PrivatePEM(priv)
	*dst = rec

	return nil
}

var (
	_ credentials.CredStore = (*CredStore)(nil)
	_ credentials.Resetter  = (*CredStore)(nil)
)
