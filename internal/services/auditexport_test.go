package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/inkwell-comics/modsvc/internal/logging"
	"github.com/inkwell-comics/modsvc/internal/storage"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type objectSink struct {
	objects map[string][]byte
	err     error
}

func (s *objectSink) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *objectSink) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (s *objectSink) PutBytes(_ context.Context, key string, data []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func TestAuditExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := 1
	for _, action := range []string{"Banned: spam", "Unbanned by administrator"} {
		_, err := f.store.Audit().Append(ctx, types.AuditEntry{UserID: 8, ActorID: &actor, Action: action})
		require.NoError(t, err)
	}

	sink := &objectSink{}
	svc := NewAuditExportService(f.store.Audit(), sink, logging.Discard())
	from := fixedNow.Add(-time.Hour)
	to := fixedNow.Add(time.Hour)

	key, n, err := svc.Export(ctx, from, to, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "audit/20260314T110000Z_20260314T130000Z.jsonl", key)

	_, _, err = svc.Export(ctx, from, to, false)
	assert.ErrorIs(t, err, ErrConflict)
	_, n, err = svc.Export(ctx, from, to, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exports, err := svc.Exports(ctx)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, key, exports[0].Key)

	scanner := bufio.NewScanner(bytes.NewReader(sink.objects[key]))
	var actions []string
	for scanner.Scan() {
		var entry types.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{"Banned: spam", "Unbanned by administrator"}, actions)
}

func TestAuditExportErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := NewAuditExportService(f.store.Audit(), &objectSink{}, nil)
	_, _, err := svc.Export(ctx, fixedNow, fixedNow, false)
	assert.ErrorIs(t, err, ErrInvalidInput)

	boom := errors.New("bucket gone")
	svc = NewAuditExportService(f.store.Audit(), &objectSink{err: boom}, nil)
	_, _, err = svc.Export(ctx, fixedNow.Add(-time.Hour), fixedNow, false)
	assert.ErrorIs(t, err, boom)
}
