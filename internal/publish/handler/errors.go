package handler

import (
	"errors"

	"slowclaw/internal/publish/failure"
	dErrors "slowclaw/pkg/domain-errors"
)

// toDomainError maps publish failures onto transport-agnostic codes.
// Domain errors pass through unchanged.
func toDomainError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	kind := failure.KindOf(err)
	if kind == "" {
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
	return dErrors.Wrap(err, codeForKind(kind), failure.Message(err))
}

func codeForKind(kind failure.Kind) dErrors.Code {
	switch kind {
	case failure.KindAuth:
		return dErrors.CodeUnauthorized
	case failure.KindInvalidInput:
		return dErrors.CodeInvalidInput
	case failure.KindTimeout:
		return dErrors.CodeTimeout
	case failure.KindCanceled:
		return dErrors.CodeCanceled
	case failure.KindUpload, failure.KindProcessing, failure.KindPublish:
		return dErrors.CodeUpstream
	default:
		return dErrors.CodeInternal
	}
}
