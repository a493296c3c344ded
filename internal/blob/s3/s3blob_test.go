package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/store/memory"
)

type memWriter struct {
	objects     map[string][]byte
	contentType map[string]string
	err         error
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
		m.contentType = make(map[string]string)
	}
	m.objects[path] = body
	m.contentType[path] = contentType
	return nil
}

type staticSource map[uint64]domain.GameLedger

func (s staticSource) Snapshot(_ context.Context, id uint64) (domain.GameLedger, error) {
	l, ok := s[id]
	if !ok {
		return domain.GameLedger{}, domain.ErrNotFound
	}
	return l, nil
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", withScheme("https://e2.example.com", false))
	assert.Equal(t, "http://minio:9000", withScheme("http://minio:9000", true))
	assert.Equal(t, "https://minio:9000", withScheme("minio:9000", true))
	assert.Equal(t, "http://minio:9000", withScheme("minio:9000", false))
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "games/4/ledger-20260301T113005Z.json", ArchiveKey(4, at))
}

func TestArchiveGame(t *testing.T) {
	ctx := context.Background()
	user := common.HexToAddress("0x0000000000000000000000000000000000000a11")
	src := staticSource{
		3: {
			Game:     domain.Game{ID: 3, Name: "Derby", TotalSold: domain.Pair{Positive: 10}},
			Holdings: []domain.Holding{{User: user, Positive: 10, SpentCents: 700}},
		},
	}
	w := &memWriter{}
	audit := memory.NewAuditStore()
	a := NewArchiver(src, w, audit)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	key, err := a.ArchiveGame(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "games/3/ledger-20260301T000000Z.json", key)
	assert.Equal(t, "application/json", w.contentType[key])

	var got domain.GameLedger
	require.NoError(t, json.Unmarshal(w.objects[key], &got))
	assert.Equal(t, src[3].Game.Name, got.Game.Name)
	assert.Equal(t, src[3].Holdings, got.Holdings)

	entries, _ := audit.List(ctx, domain.ListOpts{})
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger_archived", entries[0].Event)
	assert.Equal(t, key, entries[0].Detail["key"])
}

func TestArchiveGame_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewArchiver(staticSource{}, &memWriter{}, nil).ArchiveGame(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)

	boom := errors.New("bucket gone")
	src := staticSource{1: {Game: domain.Game{ID: 1}}}
	_, err = NewArchiver(src, &memWriter{err: boom}, nil).ArchiveGame(ctx, 1)
	require.ErrorIs(t, err, boom)
}
