package kie

import (
	"context"
	"fmt"
	"net/http"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/job"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// Download fetches rawURL into dest atomically and returns a verified local
// handle. The download timeout bounds the whole transfer.
func (c *Client) Download(ctx context.Context, rawURL, dest, format string) (job.MediaHandle, error) {
	dlCtx := ctx
	cancel := func() {}
	if c.downloadTTL > 0 {
		dlCtx, cancel = context.WithTimeout(ctx, c.downloadTTL)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return job.MediaHandle{}, services.Wrap(services.ErrPermanent, "", "download", fmt.Sprintf("invalid url %q", rawURL), err)
	}
	req.Header.Set("User-Agent", userAgent)

	// The transfer is bounded by dlCtx, not by the API client's timeout.
	client := *c.httpClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return job.MediaHandle{}, classifyTransport("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return job.MediaHandle{}, classifyStatus("download", resp.StatusCode, fmt.Errorf("GET %s: %s", rawURL, resp.Status))
	}

	written, err := fileutil.WriteAtomic(dest, resp.Body, 0o644)
	if err != nil {
		if ctx.Err() != nil {
			return job.MediaHandle{}, ctx.Err()
		}
		return job.MediaHandle{}, classifyTransport("download", err)
	}
	c.logger.Debug("downloaded generation result",
		logging.String("path", dest),
		logging.Int64("bytes", written),
	)
	return job.NewLocalHandle(dest, format)
}
