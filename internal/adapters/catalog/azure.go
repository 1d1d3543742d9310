package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// AzureConfig holds Azure Blob Storage mirror configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// AzureRemote implements output.Remote for a blob container mirroring the
// day-directory layout as virtual directories.
type AzureRemote struct {
	client    *container.Client
	container string
	prefix    string
	logger    *slog.Logger
}

// NewAzureRemote creates a new Azure Blob Storage remote.
func NewAzureRemote(cfg AzureConfig, logger *slog.Logger) (*AzureRemote, error) {
	var client *azblob.Client
	var err error

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
	}
	if err != nil {
		return nil, err
	}

	return &AzureRemote{
		client:    client.ServiceClient().NewContainerClient(cfg.Container),
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		logger:    logger,
	}, nil
}

// Connect verifies the container is reachable.
func (r *AzureRemote) Connect(ctx context.Context) error {
	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to container %s: %w", r.container, err)
	}
	r.logger.Debug("azure session established", "container", r.container, "prefix", r.prefix)
	return nil
}

// Ping reads the container properties.
func (r *AzureRemote) Ping(ctx context.Context) error {
	_, err := r.client.GetProperties(ctx, nil)
	return err
}

// Close is a no-op.
func (r *AzureRemote) Close() error {
	return nil
}

// list returns the virtual directories and blob names directly below dir.
func (r *AzureRemote) list(ctx context.Context, dir string) (prefixes, names []string, err error) {
	pager := r.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: &dir,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, p := range page.Segment.BlobPrefixes {
			if p.Name != nil {
				prefixes = append(prefixes, *p.Name)
			}
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}
	return prefixes, names, nil
}

// ListDays returns the day directories below the product prefix, newest first.
func (r *AzureRemote) ListDays(ctx context.Context) ([]domain.DayID, error) {
	prefixes, _, err := r.list(ctx, r.dirKey(""))
	if err != nil {
		return nil, fmt.Errorf("listing days: %w", err)
	}
	return daysFromNames(prefixes), nil
}

// ListFiles returns the blob names below a day directory.
func (r *AzureRemote) ListFiles(ctx context.Context, day domain.DayID) ([]string, error) {
	_, names, err := r.list(ctx, r.dirKey(day.String()))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", day, err)
	}
	return fileNames(names), nil
}

// Open downloads a blob as a stream.
func (r *AzureRemote) Open(ctx context.Context, day domain.DayID, name string) (io.ReadCloser, int64, error) {
	resp, err := r.client.NewBlobClient(r.fileKey(day, name)).DownloadStream(ctx, nil)
	if err != nil {
		return nil, -1, err
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

// Size reads the blob properties.
func (r *AzureRemote) Size(ctx context.Context, day domain.DayID, name string) (int64, error) {
	props, err := r.client.NewBlobClient(r.fileKey(day, name)).GetProperties(ctx, nil)
	if err != nil {
		return -1, err
	}
	if props.ContentLength == nil {
		return -1, nil
	}
	return *props.ContentLength, nil
}

func (r *AzureRemote) dirKey(dir string) string {
	key := joinKey(r.prefix, dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

func (r *AzureRemote) fileKey(day domain.DayID, name string) string {
	return joinKey(r.prefix, day.String(), name)
}
