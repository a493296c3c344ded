package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// GameLedger is a point-in-time copy of a game and every holding in it.
type GameLedger struct {
	Game     Game      `json:"game"`
	Holdings []Holding `json:"holdings"`
}
