package requestValidator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taji-labs/signing-service/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var transactionPath = field.NewPath("transaction")

// ValidateRequest checks, in order, that the transaction object exists, that a
// private key exists and that every required transaction field is present. Only the
// first failing stage is reported; the last stage reports all missing fields at once.
func ValidateRequest(req *types.SignTransactionRequest) (*types.TransactionFields, types.Secret, error) {
	if req == nil || isAbsent(req.Transaction) {
		return nil, types.Secret{}, types.NewMissingTransactionError()
	}

	secret, ok := extractSecret(req.PrivateKey)
	if !ok {
		return nil, types.Secret{}, types.NewMissingPrivateKeyError()
	}

	fields, errs := ValidateTransaction(req.Transaction)
	if len(errs) > 0 {
		return nil, types.Secret{}, types.NewMissingFieldsError(MissingFieldNames(errs))
	}
	return fields, secret, nil
}

// ValidateTransaction checks field presence only. A key counts as present when it
// exists with a non-null value; zero values are present. Empty strings count as
// missing for every field except data, where "" means an empty payload.
func ValidateTransaction(raw json.RawMessage) (*types.TransactionFields, field.ErrorList) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// not an object, so none of the keys exist
		obj = nil
	}

	var allErrs field.ErrorList
	for _, name := range types.RequiredFields {
		if !isPresent(name, obj[name]) {
			allErrs = append(allErrs, field.Required(transactionPath.Child(name), fmt.Sprintf("%s is required", name)))
		}
	}
	if len(allErrs) > 0 {
		return nil, allErrs
	}
	return types.NewTransactionFields(obj), nil
}

// MissingFieldNames maps required-field errors back to wire names, keeping order.
func MissingFieldNames(errs field.ErrorList) []string {
	names := make([]string, 0, len(errs))
	prefix := transactionPath.String() + "."
	for _, e := range errs {
		if e.Type != field.ErrorTypeRequired {
			continue
		}
		names = append(names, strings.TrimPrefix(e.Field, prefix))
	}
	return names
}

func isPresent(name string, raw json.RawMessage) bool {
	if isAbsent(raw) {
		return false
	}
	if name == types.FieldData {
		return true
	}
	return !bytes.Equal(bytes.TrimSpace(raw), []byte(`""`))
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func extractSecret(raw json.RawMessage) (types.Secret, bool) {
	if isAbsent(raw) {
		return types.Secret{}, false
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return types.NewMalformedSecret(), true
	}
	if key == "" {
		return types.Secret{}, false
	}
	return types.NewSecret(key), true
}
