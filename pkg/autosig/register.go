package autosig

import (
	"context"
	"errors"
	"strings"
	"time"

	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/credentials"
	"code.autosig.org/golang/pkg/keypair"
)

// RegisterRequest holds the information needed to register a teacher account.
type RegisterRequest struct {
	Id             string
	DisplayName    string
	InitialBSSID   string
	ExpectedDigest []byte
}

// Check returns a MissingParameter StatusError if the RegisterRequest name or digest is empty
// and an InvalidParameter StatusError if its id is invalid.
func (self RegisterRequest) Check() error {
	return checkAccount(self.Id, self.DisplayName, self.ExpectedDigest)
}

// StudentRequest holds the information needed to enroll a student account.
type StudentRequest struct {
	Id             string
	DisplayName    string
	WxOpenId       string
	ExpectedDigest []byte
}

// Check returns a StatusError if the StudentRequest is invalid, see RegisterRequest.Check.
func (self StudentRequest) Check() error {
	return checkAccount(self.Id, self.DisplayName, self.ExpectedDigest)
}

func checkAccount(id string, name string, digest []byte) error {
	err := credentials.CheckId(id)
	if nil != err {
		return statusError(CodeInvalidParameter, err, "invalid id")
	}
	if 0 == len(strings.TrimSpace(name)) {
		return statusError(CodeMissingParameter, nil, "empty name")
	}
	if 0 == len(digest) {
		return statusError(CodeMissingParameter, nil, "empty digest")
	}
	return nil
}

// Registrar creates accounts.
type Registrar struct {
	Store   credentials.CredStore
	KeyBits int
	Timeout time.Duration
}

// Register creates the teacher account described by req with a freshly generated keypair.
// The account SSID binding is left empty.
//
// It errors with CodeUserExisting if the account id is already registered, in which case nothing is modified.
func (self Registrar) Register(ctx context.Context, req RegisterRequest) error {
	err := req.Check()
	if nil != err {
		return err
	}
	err = credentials.BSSID.Check(req.InitialBSSID)
	if nil != err {
		return statusError(CodeInvalidParameter, err, "invalid bssid")
	}

	return self.create(ctx, credentials.Record{
		Kind:           credentials.Teacher,
		Id:             req.Id,
		DisplayName:    req.DisplayName,
		BindingBSSID:   req.InitialBSSID,
		ExpectedDigest: req.ExpectedDigest,
	})
}

// EnrollStudent creates the student account described by req with a freshly generated keypair.
//
// It errors with CodeUserExisting if the student id is already enrolled.
func (self Registrar) EnrollStudent(ctx context.Context, req StudentRequest) error {
	err := req.Check()
	if nil != err {
		return err
	}

	return self.create(ctx, credentials.Record{
		Kind:           credentials.Student,
		Id:             req.Id,
		DisplayName:    req.DisplayName,
		ExpectedDigest: req.ExpectedDigest,
		WxOpenId:       req.WxOpenId,
	})
}

func (self Registrar) create(ctx context.Context, record credentials.Record) error {
	log := observability.GetObservability(ctx).Log().With("kind", record.Kind.String(), "id", record.Id)

	// fast path, avoids generating a keypair for an existing account
	// the InsertRecord below decides in case of concurrent registrations
	_, err := callStore(ctx, self.Timeout, func(ctx context.Context) (keypair.PublicPEM, error) {
		return self.Store.LoadPublicKey(ctx, record.Kind, record.Id)
	})
	switch {
	case nil == err:
		log.Debug("account already registered")
		return statusError(CodeUserExisting, nil, "%s %s already registered", record.Kind, record.Id)
	case !errors.Is(err, credentials.ErrNotFound):
		log.Error("failed account lookup", "error", err)
		return statusError(CodeInternalFault, err, "failed account lookup")
	}

	kp, err := keypair.Generate(self.KeyBits)
	if nil != err {
		log.Error("failed keypair generation", "error", err)
		return statusError(CodeInternalFault, err, "failed keypair generation")
	}
	record.PublicKey = kp.PublicKey
	record.PrivateKey = kp.PrivateKey

	err = callStoreErr(ctx, self.Timeout, func(ctx context.Context) error {
		return self.Store.InsertRecord(ctx, &record)
	})
	switch {
	case nil == err:
		log.Info("account registered")
		return nil
	case errors.Is(err, credentials.ErrUserExisting):
		log.Debug("account registered concurrently")
		return statusError(CodeUserExisting, err, "%s %s already registered", record.Kind, record.Id)
	case errors.Is(err, credentials.ErrValidation):
		return statusError(CodeInvalidParameter, err, "invalid account")
	}
	log.Error("failed saving account", "error", err)

	return statusError(CodeInternalFault, err, "failed saving account")
}
