package faults

import (
	"net/http"
	"reflect"
)

// Fault kinds of the built-in table.
const (
	ArgumentFault        FaultKind = "ArgumentFault"
	ArgumentNilFault     FaultKind = "ArgumentNilFault"
	ArgumentRangeFault   FaultKind = "ArgumentRangeFault"
	FormatFault          FaultKind = "FormatFault"
	NotFoundFault        FaultKind = "NotFoundFault"
	KeyNotFoundFault     FaultKind = "KeyNotFoundFault"
	IOFault              FaultKind = "IOFault"
	FileNotFoundFault    FaultKind = "FileNotFoundFault"
	TimeoutFault         FaultKind = "TimeoutFault"
	CanceledFault        FaultKind = "CanceledFault"
	SerializationFault   FaultKind = "SerializationFault"
	BusinessRuleFault    FaultKind = "BusinessRuleFault"
	ValidationFault      FaultKind = "ValidationFault"
	ConcurrencyFault     FaultKind = "ConcurrencyFault"
	AlreadyExistsFault   FaultKind = "AlreadyExistsFault"
	AuthenticationFault  FaultKind = "AuthenticationFault"
	AuthorizationFault   FaultKind = "AuthorizationFault"
	NotImplementedFault  FaultKind = "NotImplementedFault"
	RateLimitFault       FaultKind = "RateLimitFault"
	UnavailableFault     FaultKind = "UnavailableFault"
	FieldViolationDetail FaultKind = "FieldViolation"
)

// StatusClientClosedRequest is the non-standard status used for canceled calls.
const StatusClientClosedRequest = 499

type failureCarrier interface {
	error
	failure() *Failure
}

// seeded builds a mapping for an error type embedding Failure. The reverse
// conversion rebuilds E with the fault's message and data.
func seeded[E any, P interface {
	*E
	failureCarrier
}](fk FaultKind, status int) Mapping {
	return Mapping{
		ErrorKind:  KindOfType(reflect.TypeOf((*E)(nil))),
		FaultKind:  fk,
		HTTPStatus: status,
		ToError: func(f *Fault) error {
			e := P(new(E))
			*e.failure() = Failure{Message: f.Message, Data: f.Data.Clone()}
			return e
		},
	}
}

// SeedMappings returns the built-in error <-> fault table.
func SeedMappings() []Mapping {
	validation := seeded[ValidationError](ValidationFault, http.StatusUnprocessableEntity)
	validation.ToFault = validationToFault
	validation.ToError = validationToError

	return []Mapping{
		seeded[ArgumentError](ArgumentFault, http.StatusBadRequest),
		seeded[ArgumentNilError](ArgumentNilFault, http.StatusBadRequest),
		seeded[ArgumentRangeError](ArgumentRangeFault, http.StatusBadRequest),
		seeded[FormatError](FormatFault, http.StatusBadRequest),
		seeded[NotFoundError](NotFoundFault, http.StatusNotFound),
		seeded[KeyNotFoundError](KeyNotFoundFault, http.StatusNotFound),
		seeded[IOError](IOFault, http.StatusInternalServerError),
		seeded[FileNotFoundError](FileNotFoundFault, http.StatusNotFound),
		seeded[TimeoutError](TimeoutFault, http.StatusGatewayTimeout),
		seeded[CanceledError](CanceledFault, StatusClientClosedRequest),
		seeded[SerializationError](SerializationFault, http.StatusBadRequest),
		seeded[BusinessRuleError](BusinessRuleFault, http.StatusUnprocessableEntity),
		validation,
		seeded[ConcurrencyError](ConcurrencyFault, http.StatusConflict),
		seeded[AlreadyExistsError](AlreadyExistsFault, http.StatusConflict),
		seeded[UnauthenticatedError](AuthenticationFault, http.StatusUnauthorized),
		seeded[UnauthorizedError](AuthorizationFault, http.StatusForbidden),
		seeded[NotImplementedError](NotImplementedFault, http.StatusNotImplemented),
		seeded[RateLimitedError](RateLimitFault, http.StatusTooManyRequests),
		seeded[UnavailableError](UnavailableFault, http.StatusServiceUnavailable),
	}
}

func validationToFault(err error) (*Fault, error) {
	f := CopyFields(err, ValidationFault, http.StatusUnprocessableEntity)
	f.Data.Delete("Violations")
	var ve *ValidationError
	if ok := asValidation(err, &ve); ok {
		for _, v := range ve.Violations {
			f.Details = append(f.Details, &Fault{
				Kind:    FieldViolationDetail,
				Message: v.Message,
				Data:    DataOf("Field", v.Field),
			})
		}
	}
	return f, nil
}

func validationToError(f *Fault) error {
	ve := &ValidationError{Failure: Failure{Message: f.Message, Data: f.Data.Clone()}}
	for _, d := range f.Details {
		if d == nil {
			continue
		}
		field, _ := d.Data.Get("Field")
		ve.Violations = append(ve.Violations, Violation{Field: field, Message: d.Message})
	}
	return ve
}

func asValidation(err error, target **ValidationError) bool {
	for _, e := range Chain(err) {
		if ve, ok := e.(*ValidationError); ok {
			*target = ve
			return true
		}
	}
	return false
}
