package carrier

import (
	"context"
	"io"
	"strings"
	"testing"

	"billing-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func objectChannel(keys ...string) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		ch <- minio.ObjectInfo{Key: key}
	}
	close(ch)
	return ch
}

func body(content string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(content))
}

func TestGetCarrierFilesParsesCSV(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "billing", mock.MatchedBy(func(opts minio.ListObjectsOptions) bool {
		return opts.Prefix == "remittance/2026-07/"
	})).Return(objectChannel(
		"remittance/2026-07/acme.csv",
		"remittance/2026-07/notes.txt",
		"remittance/2026-07/globex.csv",
	))
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/acme.csv", mock.Anything).
		Return(body("account_id,amount,memo\nacct-1,100.50,july premium\nacct-2,49.50,\n"), nil)
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/globex.csv", mock.Anything).
		Return(body("account_id,amount\nacct-3,25.00\n"), nil)

	source := NewStorageSource(client, "billing", Config{Prefix: "remittance"}, zap.NewNop())

	files, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.NoError(t, err)
	require.Len(t, files, 2)

	// Sorted by carrier name; non-CSV keys skipped.
	assert.Equal(t, "acme", files[0].Carrier)
	assert.Equal(t, "150.00", files[0].TotalAmount.StringFixed(2))
	require.Len(t, files[0].LineItems, 2)
	assert.Equal(t, "acct-1", files[0].LineItems[0].AccountID)
	assert.Equal(t, "july premium", files[0].LineItems[0].Memo)

	assert.Equal(t, "globex", files[1].Carrier)
	assert.Equal(t, "25.00", files[1].TotalAmount.StringFixed(2))
}

func TestGetCarrierFilesBadAmount(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "billing", mock.Anything).
		Return(objectChannel("remittance/2026-07/acme.csv"))
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/acme.csv", mock.Anything).
		Return(body("account_id,amount\nacct-1,not-a-number\n"), nil)

	source := NewStorageSource(client, "billing", Config{}, zap.NewNop())

	_, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad amount")
}

func TestGetCarrierFilesCachesPerPeriod(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "billing", mock.Anything).
		Return(objectChannel("remittance/2026-07/acme.csv")).Once()
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/acme.csv", mock.Anything).
		Return(body("account_id,amount\nacct-1,10.00\n"), nil).Once()

	source := NewStorageSource(client, "billing", Config{CacheTTLSeconds: 300}, zap.NewNop())

	first, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.NoError(t, err)
	second, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	client.AssertNumberOfCalls(t, "ListObjects", 1)
}

func TestInvalidateForcesReload(t *testing.T) {
	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "billing", mock.Anything).
		Return(objectChannel("remittance/2026-07/acme.csv")).Once()
	client.On("ListObjects", mock.Anything, "billing", mock.Anything).
		Return(objectChannel("remittance/2026-07/acme.csv")).Once()
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/acme.csv", mock.Anything).
		Return(body("account_id,amount\nacct-1,10.00\n"), nil).Once()
	client.On("GetObject", mock.Anything, "billing", "remittance/2026-07/acme.csv", mock.Anything).
		Return(body("account_id,amount\nacct-1,12.00\n"), nil).Once()

	source := NewStorageSource(client, "billing", Config{CacheTTLSeconds: 300}, zap.NewNop())

	first, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.NoError(t, err)
	assert.Equal(t, "10.00", first[0].TotalAmount.StringFixed(2))

	source.Invalidate("2026-07")

	second, err := source.GetCarrierFiles(context.Background(), "2026-07")
	require.NoError(t, err)
	assert.Equal(t, "12.00", second[0].TotalAmount.StringFixed(2))
}
