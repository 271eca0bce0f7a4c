package model

import "encoding/json"

type ServiceError struct {
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Code int `json:"-"`
}

func (err ServiceError) Error() string {
	data, _ := json.Marshal(&err)

	return string(data)
}

type Error string

func (err Error) Error() string {
	return string(err)
}

const (
	ErrNotFound          Error = "not found"
	ErrUnauthorized      Error = "unauthorized"
	ErrForbidden         Error = "forbidden"
	ErrInvalidCommand    Error = "invalid command"
	ErrInvalidTransition Error = "invalid transition"
	ErrUnknownProvider   Error = "unknown provider"
	ErrProviderFailed    Error = "provider unreachable"
	ErrPersistence       Error = "persistence unreachable"
)
