package banners

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed input that never reaches the store.
	ErrInvalidArgument = errors.New("banners: invalid argument")
	// ErrNotFound marks an operation targeting an id that was never created.
	ErrNotFound = errors.New("banners: banner not found")
	// ErrConfigUnavailable marks an unreachable or misconfigured config store.
	ErrConfigUnavailable = errors.New("banners: config store unavailable")
	// ErrAssetHost marks a failed asset host call.
	ErrAssetHost = errors.New("banners: asset host failure")
	// ErrConflict marks a write that lost a race or would overwrite an existing key.
	ErrConflict = errors.New("banners: conflicting modification")
	// ErrAssetNotFound is returned by asset hosts when the asset is already gone.
	ErrAssetNotFound = errors.New("banners: asset not found")
)

// ServiceError carries a dotted operation code plus the error kind and cause.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		if e.kind == nil {
			return e.code
		}
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ServiceError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.err != nil {
		errs = append(errs, e.err)
	}
	return errs
}

// Code returns the dotted operation code, e.g. "banners.update.not_found".
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "banners.service.new"
	opSelect     = "banners.select"
	opCheck      = "banners.check"
	opList       = "banners.list"
	opExport     = "banners.export"
	opUpdate     = "banners.update"
	opCreate     = "banners.create"
	opDelete     = "banners.delete"
	opImport     = "banners.import"
)

const (
	reasonMissingStore      = "missing_store"
	reasonMissingAssets     = "missing_asset_host"
	reasonInvalidLocation   = "invalid_location"
	reasonInvalidID         = "invalid_id"
	reasonMissingActive     = "missing_active"
	reasonInvalidDay        = "invalid_day"
	reasonEmptyUpload       = "empty_upload"
	reasonLoadFailed        = "load_failed"
	reasonDecodeFailed      = "decode_failed"
	reasonEncodeFailed      = "encode_failed"
	reasonSaveFailed        = "save_failed"
	reasonVersionConflict   = "version_conflict"
	reasonNotFound          = "not_found"
	reasonDuplicateID       = "duplicate_id"
	reasonUploadFailed      = "upload_failed"
	reasonAssetDeleteFailed = "asset_delete_failed"
	reasonCompensateFailed  = "compensating_delete_failed"
	reasonLazyCreateFailed  = "lazy_create_failed"
	reasonPublishFailed     = "publish_failed"
)

func newServiceError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, kind: kind, err: cause}
}
