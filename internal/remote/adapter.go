// Package remote defines the Remote Store Adapter: session-gated CRUD over the
// three record kinds with sensitive fields encrypted before they leave the device.
package remote

import (
	"context"

	"github.com/medadhere/backend/internal/auth"
	"github.com/medadhere/backend/internal/crypto"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/models"
)

var (
	// ErrNoSession is returned when an operation runs without a signed-in user.
	ErrNoSession = apperrors.New(apperrors.ErrSyncAuthFailed, "no authenticated session")
	// ErrNotFound is returned when a cloud id does not exist for the owner.
	ErrNotFound = apperrors.New(apperrors.ErrRecordNotFound, "remote record not found")
)

// Backend stores records for an explicit owner. Every write stamps
// updatedAt and syncedAt with the backend clock.
type Backend interface {
	Create(ctx context.Context, ownerID string, kind models.Kind, rec models.Record) (models.Record, error)
	List(ctx context.Context, ownerID string, kind models.Kind) ([]models.Record, error)
	Update(ctx context.Context, ownerID string, kind models.Kind, cloudID string, rec models.Record) (models.Record, error)
	// Delete tombstones the record: deleted, deletedAt and updatedAt are set.
	Delete(ctx context.Context, ownerID string, kind models.Kind, cloudID string) (models.Record, error)
}

// Store is the adapter contract consumed by the orchestrator.
type Store interface {
	Create(ctx context.Context, kind models.Kind, rec models.Record) (string, error)
	List(ctx context.Context, kind models.Kind, ownerID string) ([]models.Record, error)
	Update(ctx context.Context, kind models.Kind, cloudID string, rec models.Record) error
	Delete(ctx context.Context, kind models.Kind, cloudID string) error
}

// Adapter implements Store over a Backend.
type Adapter struct {
	backend Backend
	session auth.SessionProvider
	cipher  *crypto.FieldCipher
}

// NewAdapter creates an Adapter. A nil cipher stores sensitive fields in the clear.
func NewAdapter(backend Backend, session auth.SessionProvider, cipher *crypto.FieldCipher) *Adapter {
	return &Adapter{backend: backend, session: session, cipher: cipher}
}

func (a *Adapter) owner() (string, error) {
	u := a.session.CurrentUser()
	if u == nil || u.UID == "" {
		return "", ErrNoSession
	}
	return u.UID, nil
}

// Create stores rec remotely and returns its cloud id.
func (a *Adapter) Create(ctx context.Context, kind models.Kind, rec models.Record) (string, error) {
	owner, err := a.owner()
	if err != nil {
		return "", err
	}
	payload, err := a.outbound(owner, kind, rec)
	if err != nil {
		return "", err
	}
	stored, err := a.backend.Create(ctx, owner, kind, payload)
	if err != nil {
		return "", wrapRemote("create "+string(kind), err)
	}
	return stored.CloudID, nil
}

// List returns every record of kind owned by ownerID, decrypted. An empty
// ownerID means the signed-in user.
func (a *Adapter) List(ctx context.Context, kind models.Kind, ownerID string) ([]models.Record, error) {
	owner, err := a.owner()
	if err != nil {
		return nil, err
	}
	if ownerID != "" && ownerID != owner {
		return nil, apperrors.New(apperrors.ErrInvalid, "cannot list records of another owner")
	}

	recs, err := a.backend.List(ctx, owner, kind)
	if err != nil {
		return nil, wrapRemote("list "+string(kind), err)
	}
	for i := range recs {
		if err := a.decrypt(owner, kind, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Update replaces the remote payload of cloudID.
func (a *Adapter) Update(ctx context.Context, kind models.Kind, cloudID string, rec models.Record) error {
	owner, err := a.owner()
	if err != nil {
		return err
	}
	payload, err := a.outbound(owner, kind, rec)
	if err != nil {
		return err
	}
	if _, err := a.backend.Update(ctx, owner, kind, cloudID, payload); err != nil {
		return wrapRemote("update "+string(kind)+" "+cloudID, err)
	}
	return nil
}

// Delete tombstones cloudID remotely.
func (a *Adapter) Delete(ctx context.Context, kind models.Kind, cloudID string) error {
	owner, err := a.owner()
	if err != nil {
		return err
	}
	if _, err := a.backend.Delete(ctx, owner, kind, cloudID); err != nil {
		return wrapRemote("delete "+string(kind)+" "+cloudID, err)
	}
	return nil
}

// outbound strips local-only and server-owned fields and encrypts sensitive text.
func (a *Adapter) outbound(owner string, kind models.Kind, rec models.Record) (models.Record, error) {
	out := rec.Clone()
	out.ID = ""
	out.CloudID = ""
	out.OwnerID = ""
	out.SyncedAt = 0
	if err := a.encrypt(owner, kind, &out); err != nil {
		return models.Record{}, err
	}
	return out, nil
}

func wrapRemote(op string, err error) error {
	if apperrors.Is(err, apperrors.ErrRecordNotFound) || apperrors.Is(err, apperrors.ErrSyncAuthFailed) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrSyncRemoteFailed, op, err)
}
