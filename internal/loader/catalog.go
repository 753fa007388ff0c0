package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ems3/internal/domain"
)

const DefaultCatalogURL = "https://download.fastmirror.net/api/v3"

type CoreInfo struct {
	Name      string `json:"name"`
	Tag       string `json:"tag"`
	Homepage  string `json:"homepage"`
	Recommend bool   `json:"recommend"`
}

type Build struct {
	Name        string `json:"name"`
	MCVersion   string `json:"mc_version"`
	CoreVersion string `json:"core_version"`
	UpdateTime  string `json:"update_time"`
	SHA1        string `json:"sha1"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Catalog talks to a FastMirror style core catalog.
type Catalog struct {
	baseURL string
	client  *http.Client
}

func NewCatalog(baseURL string, timeout time.Duration) *Catalog {
	if baseURL == "" {
		baseURL = DefaultCatalogURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Catalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Catalog) Cores(ctx context.Context) ([]CoreInfo, error) {
	return fetch[[]CoreInfo](ctx, c)
}

// Versions lists the game versions of a core, newest first.
func (c *Catalog) Versions(ctx context.Context, core string) ([]string, error) {
	data, err := fetch[struct {
		MCVersions []string `json:"mc_versions"`
	}](ctx, c, core)
	if err != nil {
		return nil, err
	}
	SortVersions(data.MCVersions)
	return data.MCVersions, nil
}

func (c *Catalog) Builds(ctx context.Context, core, mcVersion string) ([]Build, error) {
	data, err := fetch[struct {
		Builds []Build `json:"builds"`
	}](ctx, c, core, mcVersion)
	if err != nil {
		return nil, err
	}
	return data.Builds, nil
}

// Resolve returns the download location and file name of one build.
func (c *Catalog) Resolve(ctx context.Context, core, mcVersion, build string) (domain.BuildInfo, error) {
	info, err := fetch[domain.BuildInfo](ctx, c, core, mcVersion, build)
	if err != nil {
		return domain.BuildInfo{}, err
	}
	if info.DownloadURL == "" || info.Filename == "" {
		return domain.BuildInfo{}, fmt.Errorf("%w: incomplete build metadata for %s %s %s", domain.ErrFetchFailed, core, mcVersion, build)
	}
	return info, nil
}

func fetch[T any](ctx context.Context, c *Catalog, segments ...string) (T, error) {
	var zero T

	u := c.baseURL
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("%w: catalog responded with status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	var body envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return zero, fmt.Errorf("%w: decoding catalog response: %v", domain.ErrFetchFailed, err)
	}
	if !body.Success {
		msg := body.Message
		if msg == "" {
			msg = "catalog reported failure"
		}
		return zero, fmt.Errorf("%w: %s", domain.ErrFetchFailed, msg)
	}
	return body.Data, nil
}
