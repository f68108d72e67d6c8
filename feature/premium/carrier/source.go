package carrier

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"billing-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LineItem is one remittance row: the premium amount a carrier reports
// for one account.
type LineItem struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
}

// File is one carrier's remittance record for a billing period.
type File struct {
	Carrier     string          `json:"carrier"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	LineItems   []LineItem      `json:"lineItems"`
}

// Source returns per-carrier remittance totals and line items for a
// billing period.
type Source interface {
	GetCarrierFiles(ctx context.Context, billingPeriod string) ([]File, error)
}

// Config holds configuration for the remittance file source.
type Config struct {
	// Prefix is the object key prefix remittance files live under,
	// laid out as <prefix>/<billing period>/<carrier>.csv.
	Prefix string `mapstructure:"prefix" default:"remittance"`
	// CacheTTLSeconds is how long parsed carrier files are cached per
	// billing period. Zero disables caching.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" default:"300"`
}

// StorageSource reads remittance CSV files from the billing bucket.
type StorageSource struct {
	client storage.Client
	bucket string
	prefix string
	cache  *fileCache
	logger *zap.Logger
}

// NewStorageSource creates a remittance file source.
func NewStorageSource(client storage.Client, bucket string, cfg Config, logger *zap.Logger) *StorageSource {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "remittance"
	}
	return &StorageSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		cache:  newFileCache(cfg.CacheTTLSeconds),
		logger: logger,
	}
}

// GetCarrierFiles implements Source. Results are cached per billing
// period with stampede protection.
func (s *StorageSource) GetCarrierFiles(ctx context.Context, billingPeriod string) ([]File, error) {
	return s.cache.getOrLoad(billingPeriod, func() ([]File, error) {
		return s.load(ctx, billingPeriod)
	})
}

// load lists and parses every CSV under the period's prefix.
func (s *StorageSource) load(ctx context.Context, billingPeriod string) ([]File, error) {
	periodPrefix := fmt.Sprintf("%s/%s/", s.prefix, billingPeriod)

	var files []File
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    periodPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list remittance files: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".csv") {
			continue
		}

		file, err := s.loadOne(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}

	// Deterministic order keeps report breakdowns stable.
	sort.Slice(files, func(i, j int) bool {
		return files[i].Carrier < files[j].Carrier
	})

	s.logger.Info("Loaded carrier remittance files",
		zap.String("billing_period", billingPeriod),
		zap.Int("carriers", len(files)),
	)
	return files, nil
}

// loadOne reads and parses a single remittance CSV. The carrier name is
// the file name without extension; the total is the sum of its rows.
func (s *StorageSource) loadOne(ctx context.Context, key string) (*File, error) {
	reader, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get remittance file %s: %w", key, err)
	}
	defer reader.Close()

	carrierName := strings.TrimSuffix(path.Base(key), ".csv")
	file := &File{Carrier: carrierName, TotalAmount: decimal.Zero}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	header := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse remittance file %s: %w", key, err)
		}
		if header {
			// First row is the account_id,amount,memo header.
			header = false
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("remittance file %s has a short row: %v", key, record)
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("remittance file %s has a bad amount %q: %w", key, record[1], err)
		}

		item := LineItem{
			AccountID: strings.TrimSpace(record[0]),
			Amount:    amount,
		}
		if len(record) > 2 {
			item.Memo = strings.TrimSpace(record[2])
		}

		file.LineItems = append(file.LineItems, item)
		file.TotalAmount = file.TotalAmount.Add(amount)
	}

	return file, nil
}
