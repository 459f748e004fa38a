package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"filevault/internal/domain"
	"filevault/internal/logger"
	"filevault/internal/metrics"
	"filevault/internal/repository"
	"filevault/internal/storage/memstore"
)

const testMaxUpload int64 = 20 << 20

type testEnv struct {
	repo     *repository.MemoryFileRepository
	store    *memstore.Store
	reg      *prometheus.Registry
	uploader *UploadService
	download *DownloadService
	deleter  *DeleteService
	files    *FileService
}

func newTestEnv(t *testing.T, limits UploadLimits) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:  repository.NewMemoryFileRepository(),
		store: memstore.New(),
		reg:   prometheus.NewRegistry(),
	}
	m := metrics.New(env.reg)
	log := logger.Nop()

	env.uploader = NewUploadService(env.repo, env.store, limits, m, log)
	env.download = NewDownloadService(env.repo, env.store, m, log)
	env.deleter = NewDeleteService(env.repo, env.store, m, log)
	env.files = NewFileService(env.repo, env.uploader, env.download, env.deleter)

	return env
}

func defaultLimits() UploadLimits {
	return UploadLimits{MaxUploadBytes: testMaxUpload}
}

func (e *testEnv) mustUpload(t *testing.T, owner, name string, size int) *domain.File {
	t.Helper()

	file, err := e.uploader.Upload(context.Background(), UploadRequest{
		OwnerID:      owner,
		Body:         bytes.NewReader(bytes.Repeat([]byte("x"), size)),
		ContentType:  "text/plain",
		DeclaredName: name,
		DeclaredSize: int64(size),
	})
	require.NoError(t, err)
	return file
}

// requireConsistent проверяет, что у каждой записи есть блоб и у каждого блоба - запись
func (e *testEnv) requireConsistent(t *testing.T, owners ...string) {
	t.Helper()

	total := 0
	for _, owner := range owners {
		files, err := e.repo.ListByOwner(context.Background(), owner, domain.ListFilter{})
		require.NoError(t, err)
		for _, f := range files {
			require.True(t, e.store.Has(f.StorageName), "record %s has no blob", f.ID)
		}
		total += len(files)
	}
	require.Equal(t, total, e.store.Len(), "blobs without records")
}

func (e *testEnv) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := e.reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func sizedReader(n int64) io.Reader {
	return io.LimitReader(zeroReader{}, n)
}

type sliceSource struct {
	reqs []UploadRequest
	err  error
}

func (s *sliceSource) Next() (*UploadRequest, error) {
	if len(s.reqs) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	req := s.reqs[0]
	s.reqs = s.reqs[1:]
	return &req, nil
}

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}
