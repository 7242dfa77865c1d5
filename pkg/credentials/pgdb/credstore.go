// Package pgdb provides a PostgreSQL implementation of credentials.CredStore.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

// DefaultSchema is the database schema used when none is configured.
const DefaultSchema = "autosig"

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CredStore struct {
	DB     PGDB
	schema string
	pool   *pgxpool.Pool
}

//go:embed schema.sql
var schemaScriptTpl string

// Migrate creates the dbschema schema and its tables if they do not exist.
func Migrate(ctx context.Context, db PGDB, dbschema string) error {
	_, err := db.Exec(ctx, renderSchema(schemaScriptTpl, dbschema))

	return wrapError(err, "failed db schema initialization") // nil if err is nil...
}

// Rebuild drops the dbschema schema with all its data and recreates it.
func Rebuild(ctx context.Context, db PGDB, dbschema string) error {
	_, err := db.Exec(ctx, renderSchema("DROP SCHEMA IF EXISTS ${schema_name} CASCADE", dbschema))
	if nil != err {
		return wrapError(err, "failed dropping db schema")
	}

	return Migrate(ctx, db, dbschema)
}

func renderSchema(tpl string, dbschema string) string {
	if "" == dbschema {
		dbschema = DefaultSchema
	}
	return strings.ReplaceAll(tpl, "${schema_name}", pgx.Identifier{dbschema}.Sanitize())
}

// NewCredStore returns a CredStore connected to the dsn database.
// Connections use dbschema as search_path, the schema is created if missing.
func NewCredStore(ctx context.Context, dsn string, dbschema string) (*CredStore, error) {
	if "" == dbschema {
		dbschema = DefaultSchema
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if nil != err {
		return nil, wrapError(err, "invalid dsn")
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = dbschema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}
	err = Migrate(ctx, pool, dbschema)
	if nil != err {
		pool.Close()
		return nil, err
	}

	return &CredStore{DB: pool, schema: dbschema, pool: pool}, nil
}

// Close releases the CredStore connections.
func (self *CredStore) Close() {
	if nil != self.pool {
		self.pool.Close()
	}
}

// InsertRecord saves a new record in the CredStore.
// It errors with credentials.ErrUserExisting if an account with the same kind & id exists.
func (self *CredStore) InsertRecord(ctx context.Context, record *credentials.Record) error {
	err := record.Check()
	if nil != err {
		return wrapError(err, "invalid record")
	}

	var created int
	row := self.DB.QueryRow(
		ctx,
		`WITH created AS (INSERT INTO account(kind, uid, name, bssid, ssid, expected_digest, public_key, private_key, wx_openid)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		   ON CONFLICT (kind, uid) DO NOTHING
		   RETURNING 1)
		 SELECT count(*) FROM created`,
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
	err = row.Scan(&created)
	if nil != err {
		return wrapError(err, "failed saving record")
	}
	if 0 == created {
		return wrapError(credentials.ErrUserExisting, "%s %s already registered", record.Kind, record.Id)
	}

	return nil
}

const selectRecord = `SELECT kind, uid, name, bssid, ssid, expected_digest, public_key, private_key, coalesce(wx_openid, '')
 FROM account`

// LoadRecord loads the kind account with id identifier in dst.
func (self *CredStore) LoadRecord(ctx context.Context, kind credentials.AccountKind, id string, dst *credentials.Record) error {
	row := self.DB.QueryRow(
		ctx,
		selectRecord+` WHERE kind = $1 AND uid = $2`,
		int(kind),
		id,
	)
	err := scanRecord(row, dst)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return wrapError(credentials.ErrNotFound, "unknown %s id", kind)
		}
		return wrapError(err, "failed loading record")
	}

	return nil
}

// LoadPublicKey returns the public key of the kind account with id identifier.
func (self *CredStore) LoadPublicKey(ctx context.Context, kind credentials.AccountKind, id string) (keypair.PublicPEM, error) {
	var pub string
	row := self.DB.QueryRow(
		ctx,
		`SELECT public_key FROM account WHERE kind = $1 AND uid = $2`,
		int(kind),
		id,
	)
	err := row.Scan(&pub)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", wrapError(credentials.ErrNotFound, "unknown %s id", kind)
		}
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

	var updated int
	row := self.DB.QueryRow(
		ctx,
		fmt.Sprintf(
			`WITH updated AS (UPDATE account SET %s = $3 WHERE kind = $1 AND uid = $2 RETURNING 1)
			 SELECT count(*) FROM updated`,
			pgx.Identifier{field.Column()}.Sanitize(),
		),
		int(kind),
		id,
		value,
	)
	err = row.Scan(&updated)
	if nil != err {
		return wrapError(err, "failed UPDATE query")
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
	row := self.DB.QueryRow(
		ctx,
		selectRecord+` WHERE kind = $1 AND wx_openid = $2 ORDER BY id LIMIT 1`,
		int(kind),
		openId,
	)
	err := scanRecord(row, dst)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return wrapError(credentials.ErrNotFound, "unknown %s openId", kind)
		}
		return wrapError(err, "failed loading record")
	}

	return nil
}

// RecordCount returns the number of kind accounts in the CredStore.
func (self *CredStore) RecordCount(ctx context.Context, kind credentials.AccountKind) (int, error) {
	var rv int
	row := self.DB.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM account WHERE kind = $1`,
		int(kind),
	)
	err := row.Scan(&rv)
	if nil != err {
		return 0, wrapError(err, "failed count query")
	}

	return rv, nil
}

// Reset removes all the accounts in the CredStore.
func (self *CredStore) Reset(ctx context.Context) error {
	_, err := self.DB.Exec(ctx, `TRUNCATE account RESTART IDENTITY`)

	return wrapError(err, "failed TRUNCATE query")
}

func scanRecord(row pgx.Row, dst *credentials.Record) error {
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
	_ credentials.CredStore = &CredStore{}
	_ credentials.Resetter  = &CredStore{}
)
