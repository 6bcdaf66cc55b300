package remote

import (
	"github.com/medadhere/backend/internal/crypto"
	apperrors "github.com/medadhere/backend/internal/errors"
	"github.com/medadhere/backend/internal/models"
)

// sensitiveFields returns pointers to the string fields of rec that are
// encrypted for kind, keyed by field name.
func sensitiveFields(kind models.Kind, rec *models.Record) map[string]*string {
	switch kind {
	case models.KindMedication:
		return map[string]*string{"name": &rec.Name, "dosage": &rec.Dosage}
	case models.KindADRReport:
		return map[string]*string{"medicationName": &rec.MedicationName}
	}
	return nil
}

func (a *Adapter) encrypt(owner string, kind models.Kind, rec *models.Record) error {
	if a.cipher == nil {
		return nil
	}
	for field, p := range sensitiveFields(kind, rec) {
		ct, err := a.cipher.Encrypt(owner, field, *p)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCryptoFailed, "encrypt "+field, err)
		}
		*p = ct
	}
	if kind == models.KindADRReport {
		for i, s := range rec.Symptoms {
			ct, err := a.cipher.Encrypt(owner, "symptoms", s)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCryptoFailed, "encrypt symptoms", err)
			}
			rec.Symptoms[i] = ct
		}
	}
	return nil
}

// decrypt reverses encrypt. Plaintext values written before encryption was
// enabled pass through unchanged.
func (a *Adapter) decrypt(owner string, kind models.Kind, rec *models.Record) error {
	if a.cipher == nil {
		if hasCiphertext(kind, rec) {
			return apperrors.New(apperrors.ErrCryptoFailed, "record "+rec.CloudID+" is encrypted but no key is configured")
		}
		return nil
	}
	for field, p := range sensitiveFields(kind, rec) {
		pt, err := a.cipher.Decrypt(owner, field, *p)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCryptoFailed, "decrypt "+field+" of "+rec.CloudID, err)
		}
		*p = pt
	}
	if kind == models.KindADRReport {
		for i, s := range rec.Symptoms {
			pt, err := a.cipher.Decrypt(owner, "symptoms", s)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCryptoFailed, "decrypt symptoms of "+rec.CloudID, err)
			}
			rec.Symptoms[i] = pt
		}
	}
	return nil
}

func hasCiphertext(kind models.Kind, rec *models.Record) bool {
	for _, p := range sensitiveFields(kind, rec) {
		if crypto.IsEncrypted(*p) {
			return true
		}
	}
	for _, s := range rec.Symptoms {
		if crypto.IsEncrypted(s) {
			return true
		}
	}
	return false
}
