package service

import (
	"time"

	"github.com/google/uuid"
)

const formatoFecha = time.RFC3339Nano

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(formatoFecha)
	return &s
}
